package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"racereg/internal/registration/models"
	id "racereg/pkg/domain"
	"racereg/pkg/platform/sentinel"
	txctx "racereg/pkg/platform/tx"
)

const uniqueViolation = "23505"

const registrationColumns = `
	r.id, r.runner_id, r.distance_id, r.race_id, r.registered_at, r.payment_status,
	r.bib_number, r.payment_method, r.transaction_no, r.paid_at, r.cancelled_at, r.version`

// Postgres is the database-backed ledger. Methods join the transaction carried
// by ctx (see RunInTx) and otherwise run on the pool.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) execer(ctx context.Context) txctx.Execer {
	return txctx.ExecerFrom(ctx, s.db)
}

// RunInTx runs fn in a database transaction committed when fn returns nil.
// Nested calls join the outer transaction.
func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txctx.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txctx.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Postgres) FindRace(ctx context.Context, raceID id.RaceID) (*models.Race, error) {
	query := `SELECT id, organizer_id, name, status, race_date FROM races WHERE id = $1`
	var race models.Race
	var rid, organizerID uuid.UUID
	var status string
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(raceID)).
		Scan(&rid, &organizerID, &race.Name, &status, &race.RaceDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("race %s: %w", raceID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find race: %w", err)
	}
	race.ID = id.RaceID(rid)
	race.OrganizerID = id.UserID(organizerID)
	race.Status = models.RaceStatus(status)
	return &race, nil
}

func (s *Postgres) FindDistance(ctx context.Context, distanceID id.DistanceID) (*models.Distance, error) {
	query := `
		SELECT id, race_id, name, max_participants, start_time, registration_fee
		FROM race_distances
		WHERE id = $1
	`
	var d models.Distance
	var did, raceID uuid.UUID
	var fee int64
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(distanceID)).
		Scan(&did, &raceID, &d.Name, &d.MaxParticipants, &d.StartTime, &fee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("distance %s: %w", distanceID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find distance: %w", err)
	}
	d.ID = id.DistanceID(did)
	d.RaceID = id.RaceID(raceID)
	d.Fee = models.Money(fee)
	return &d, nil
}

func (s *Postgres) FindRegistration(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	query := `SELECT` + registrationColumns + ` FROM registrations r WHERE r.id = $1`
	reg, err := scanRegistration(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(regID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("registration %s: %w", regID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

func (s *Postgres) CountActive(ctx context.Context, distanceID id.DistanceID) (int, error) {
	query := `SELECT COUNT(*) FROM registrations WHERE distance_id = $1 AND payment_status <> 'Cancelled'`
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(distanceID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return n, nil
}

func (s *Postgres) ListByRunner(ctx context.Context, runnerID id.UserID) ([]*models.RegistrationDetails, error) {
	query := `SELECT` + registrationColumns + `, races.name, d.name, d.start_time, d.registration_fee
		FROM registrations r
		JOIN race_distances d ON d.id = r.distance_id
		JOIN races ON races.id = r.race_id
		WHERE r.runner_id = $1
		ORDER BY r.registered_at DESC, r.id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(runnerID))
	if err != nil {
		return nil, fmt.Errorf("list registrations by runner: %w", err)
	}
	defer rows.Close()

	var out []*models.RegistrationDetails
	for rows.Next() {
		var d models.RegistrationDetails
		var fee int64
		reg, err := scanRegistration(rows, &d.RaceName, &d.DistanceName, &d.StartTime, &fee)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		d.Registration = *reg
		d.Fee = models.Money(fee)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

// TryInsertIfUnderCapacity locks the distance row, checks for a duplicate
// active registration and for a free slot, then inserts. Concurrent callers on
// the same distance queue on the row lock, so each count sees every insert
// committed before it. The partial unique index on (runner_id, distance_id)
// backs up the duplicate check.
func (s *Postgres) TryInsertIfUnderCapacity(ctx context.Context, reg *models.Registration) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		q := s.execer(ctx)

		var raceID uuid.UUID
		var maxParticipants int
		err := q.QueryRowContext(ctx,
			`SELECT race_id, max_participants FROM race_distances WHERE id = $1 FOR UPDATE`,
			uuid.UUID(reg.DistanceID),
		).Scan(&raceID, &maxParticipants)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("distance %s: %w", reg.DistanceID, sentinel.ErrNotFound)
			}
			return fmt.Errorf("lock distance: %w", err)
		}

		var active int
		var duplicate bool
		err = q.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(BOOL_OR(runner_id = $2), false)
			FROM registrations
			WHERE distance_id = $1 AND payment_status <> 'Cancelled'
		`, uuid.UUID(reg.DistanceID), uuid.UUID(reg.RunnerID)).Scan(&active, &duplicate)
		if err != nil {
			return fmt.Errorf("count active registrations: %w", err)
		}
		if duplicate {
			return fmt.Errorf("runner %s on distance %s: %w", reg.RunnerID, reg.DistanceID, sentinel.ErrAlreadyUsed)
		}
		if active >= maxParticipants {
			return fmt.Errorf("distance %s: %w", reg.DistanceID, sentinel.ErrCapacityExhausted)
		}

		reg.RaceID = id.RaceID(raceID)
		_, err = q.ExecContext(ctx, `
			INSERT INTO registrations (id, runner_id, distance_id, race_id, registered_at, payment_status, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.UUID(reg.ID), uuid.UUID(reg.RunnerID), uuid.UUID(reg.DistanceID), raceID,
			reg.RegisteredAt, string(reg.PaymentStatus), reg.Version)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("runner %s on distance %s: %w", reg.RunnerID, reg.DistanceID, sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

// TransitionPaymentStatus is a conditional UPDATE on the expected status. When
// no row matches it tells a missing registration apart from a lost race.
func (s *Postgres) TransitionPaymentStatus(ctx context.Context, t models.Transition) (*models.Registration, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.From == t.To {
		reg, err := s.FindRegistration(ctx, t.RegistrationID)
		if err != nil {
			return nil, err
		}
		if reg.PaymentStatus != t.From {
			return nil, fmt.Errorf("registration %s is %s, expected %s: %w",
				t.RegistrationID, reg.PaymentStatus, t.From, sentinel.ErrInvalidState)
		}
		return reg, nil
	}

	var method, transactionNo sql.NullString
	if t.Payment != nil {
		method = sql.NullString{String: t.Payment.Method, Valid: true}
		transactionNo = sql.NullString{String: t.Payment.TransactionNo, Valid: true}
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	query := `
		UPDATE registrations AS r SET
			payment_status = $3::text,
			payment_method = CASE WHEN $3::text = 'Paid' THEN $4::text ELSE r.payment_method END,
			transaction_no = CASE WHEN $3::text = 'Paid' THEN $5::text ELSE r.transaction_no END,
			paid_at        = CASE WHEN $3::text = 'Paid' THEN $6::timestamptz ELSE r.paid_at END,
			cancelled_at   = CASE WHEN $3::text = 'Cancelled' THEN $6::timestamptz ELSE r.cancelled_at END,
			version        = r.version + 1
		WHERE r.id = $1 AND r.payment_status = $2::text
		RETURNING` + registrationColumns

	reg, err := scanRegistration(s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(t.RegistrationID), string(t.From), string(t.To), method, transactionNo, at))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition payment status: %w", err)
	}

	current, findErr := s.FindRegistration(ctx, t.RegistrationID)
	if findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("registration %s is %s, expected %s: %w",
		t.RegistrationID, current.PaymentStatus, t.From, sentinel.ErrInvalidState)
}

// LockRace takes a row lock on the race for the rest of the transaction, so
// concurrent bib batches for the same race run one after another.
func (s *Postgres) LockRace(ctx context.Context, raceID id.RaceID) error {
	var locked uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT id FROM races WHERE id = $1 FOR UPDATE`, uuid.UUID(raceID)).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("race %s: %w", raceID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("lock race: %w", err)
	}
	return nil
}

// ListPaidUnbibbed also row-locks the returned registrations so a concurrent
// cancel waits for the bib batch to commit.
func (s *Postgres) ListPaidUnbibbed(ctx context.Context, raceID id.RaceID) ([]*models.Registration, error) {
	query := `SELECT` + registrationColumns + `
		FROM registrations r
		WHERE r.race_id = $1 AND r.payment_status = 'Paid' AND r.bib_number IS NULL
		ORDER BY r.registered_at, r.id
		FOR UPDATE
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(raceID))
	if err != nil {
		return nil, fmt.Errorf("list paid registrations without bib: %w", err)
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

func (s *Postgres) ListBibNumbers(ctx context.Context, raceID id.RaceID) ([]string, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT bib_number FROM registrations WHERE race_id = $1 AND bib_number IS NOT NULL`,
		uuid.UUID(raceID))
	if err != nil {
		return nil, fmt.Errorf("list bib numbers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var bib string
		if err := rows.Scan(&bib); err != nil {
			return nil, fmt.Errorf("scan bib number: %w", err)
		}
		out = append(out, bib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bib numbers: %w", err)
	}
	return out, nil
}

// BulkSetBibNumbers writes all assignments in one statement. Rows that are no
// longer Paid, or already carry a bib, are skipped by the predicate; any skip
// fails the batch so the surrounding transaction rolls back.
func (s *Postgres) BulkSetBibNumbers(ctx context.Context, assignments []models.BibAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	ids := make([]string, len(assignments))
	bibs := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.RegistrationID.String()
		bibs[i] = a.BibNumber
	}

	return s.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx, `
			UPDATE registrations AS r
			SET bib_number = v.bib_number, version = r.version + 1
			FROM unnest($1::uuid[], $2::text[]) AS v(id, bib_number)
			WHERE r.id = v.id AND r.payment_status = 'Paid' AND r.bib_number IS NULL
		`, pq.Array(ids), pq.Array(bibs))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("assign bib numbers: %w", sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("assign bib numbers: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("assign bib numbers: %w", err)
		}
		if affected != int64(len(assignments)) {
			return fmt.Errorf("assigned %d of %d bib numbers: %w", affected, len(assignments), sentinel.ErrInvalidState)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRegistration reads registrationColumns, followed by any extra columns
// into extra.
func scanRegistration(row rowScanner, extra ...any) (*models.Registration, error) {
	var reg models.Registration
	var regID, runnerID, distanceID, raceID uuid.UUID
	var status string
	var bib, method, transactionNo sql.NullString
	var paidAt, cancelledAt sql.NullTime

	dest := []any{&regID, &runnerID, &distanceID, &raceID, &reg.RegisteredAt, &status,
		&bib, &method, &transactionNo, &paidAt, &cancelledAt, &reg.Version}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	reg.ID = id.RegistrationID(regID)
	reg.RunnerID = id.UserID(runnerID)
	reg.DistanceID = id.DistanceID(distanceID)
	reg.RaceID = id.RaceID(raceID)
	reg.PaymentStatus = models.PaymentStatus(status)
	reg.BibNumber = bib.String
	reg.PaymentMethod = method.String
	reg.TransactionNo = transactionNo.String
	if paidAt.Valid {
		t := paidAt.Time
		reg.PaidAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		reg.CancelledAt = &t
	}
	return &reg, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
