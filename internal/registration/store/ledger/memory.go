package ledger

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"racereg/internal/registration/models"
	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
	"racereg/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// InMemory is a single-process ledger guarded by one RWMutex. Every write is
// atomic with respect to every other write; RunInTx holds the write lock for
// the whole callback and restores the previous state when it fails.
//
// Stored registrations are never mutated in place: writes replace the map
// entry with an updated copy, and reads return copies.
type InMemory struct {
	mu            sync.RWMutex
	races         map[id.RaceID]*models.Race
	distances     map[id.DistanceID]*models.Distance
	registrations map[id.RegistrationID]*models.Registration
	txTimeout     time.Duration
}

type memTxKey struct{ store *InMemory }

func NewInMemory() *InMemory {
	return &InMemory{
		races:         make(map[id.RaceID]*models.Race),
		distances:     make(map[id.DistanceID]*models.Distance),
		registrations: make(map[id.RegistrationID]*models.Registration),
		txTimeout:     defaultTxTimeout,
	}
}

func (s *InMemory) inTx(ctx context.Context) bool {
	held, _ := ctx.Value(memTxKey{s}).(bool)
	return held
}

func (s *InMemory) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *InMemory) rlock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// RunInTx runs fn while holding the store lock. Calls made with the context
// passed to fn do not re-acquire it. Nested calls join the outer transaction.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	snapshot := maps.Clone(s.registrations)
	if err := fn(context.WithValue(ctx, memTxKey{s}, true)); err != nil {
		s.registrations = snapshot
		return err
	}
	return nil
}

func (s *InMemory) FindRace(ctx context.Context, raceID id.RaceID) (*models.Race, error) {
	defer s.rlock(ctx)()
	r, ok := s.races[raceID]
	if !ok {
		return nil, fmt.Errorf("race %s: %w", raceID, sentinel.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) FindDistance(ctx context.Context, distanceID id.DistanceID) (*models.Distance, error) {
	defer s.rlock(ctx)()
	d, ok := s.distances[distanceID]
	if !ok {
		return nil, fmt.Errorf("distance %s: %w", distanceID, sentinel.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *InMemory) FindRegistration(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	defer s.rlock(ctx)()
	r, ok := s.registrations[regID]
	if !ok {
		return nil, fmt.Errorf("registration %s: %w", regID, sentinel.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) CountActive(ctx context.Context, distanceID id.DistanceID) (int, error) {
	defer s.rlock(ctx)()
	return s.countActive(distanceID), nil
}

func (s *InMemory) countActive(distanceID id.DistanceID) int {
	n := 0
	for _, r := range s.registrations {
		if r.DistanceID == distanceID && r.IsActive() {
			n++
		}
	}
	return n
}

// ListByRunner returns the runner's registrations, newest first.
func (s *InMemory) ListByRunner(ctx context.Context, runnerID id.UserID) ([]*models.RegistrationDetails, error) {
	defer s.rlock(ctx)()
	var out []*models.RegistrationDetails
	for _, r := range s.registrations {
		if r.RunnerID != runnerID {
			continue
		}
		d := &models.RegistrationDetails{Registration: *r}
		if dist, ok := s.distances[r.DistanceID]; ok {
			d.DistanceName = dist.Name
			d.StartTime = dist.StartTime
			d.Fee = dist.Fee
		}
		if race, ok := s.races[r.RaceID]; ok {
			d.RaceName = race.Name
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *models.RegistrationDetails) int {
		if c := b.RegisteredAt.Compare(a.RegisteredAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out, nil
}

// TryInsertIfUnderCapacity inserts reg when its distance exists, the runner
// has no other active registration for it and a slot is free. The checks and
// the insert happen under one lock.
func (s *InMemory) TryInsertIfUnderCapacity(ctx context.Context, reg *models.Registration) error {
	defer s.lock(ctx)()

	d, ok := s.distances[reg.DistanceID]
	if !ok {
		return fmt.Errorf("distance %s: %w", reg.DistanceID, sentinel.ErrNotFound)
	}
	active := 0
	for _, r := range s.registrations {
		if r.DistanceID != reg.DistanceID || !r.IsActive() {
			continue
		}
		if r.RunnerID == reg.RunnerID {
			return fmt.Errorf("runner %s on distance %s: %w", reg.RunnerID, reg.DistanceID, sentinel.ErrAlreadyUsed)
		}
		active++
	}
	if active >= d.MaxParticipants {
		return fmt.Errorf("distance %s: %w", reg.DistanceID, sentinel.ErrCapacityExhausted)
	}
	if _, exists := s.registrations[reg.ID]; exists {
		return fmt.Errorf("registration %s: %w", reg.ID, sentinel.ErrConflict)
	}

	cp := *reg
	cp.RaceID = d.RaceID
	s.registrations[cp.ID] = &cp
	return nil
}

// TransitionPaymentStatus applies t only while the stored status equals t.From.
func (s *InMemory) TransitionPaymentStatus(ctx context.Context, t models.Transition) (*models.Registration, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	current, ok := s.registrations[t.RegistrationID]
	if !ok {
		return nil, fmt.Errorf("registration %s: %w", t.RegistrationID, sentinel.ErrNotFound)
	}
	if current.PaymentStatus != t.From {
		return nil, fmt.Errorf("registration %s is %s, expected %s: %w",
			t.RegistrationID, current.PaymentStatus, t.From, sentinel.ErrInvalidState)
	}
	updated := *current
	if t.From != t.To {
		updated.Apply(t)
		s.registrations[updated.ID] = &updated
	}
	out := updated
	return &out, nil
}

// LockRace is a no-op: RunInTx already serialises every write.
func (s *InMemory) LockRace(ctx context.Context, raceID id.RaceID) error {
	defer s.rlock(ctx)()
	if _, ok := s.races[raceID]; !ok {
		return fmt.Errorf("race %s: %w", raceID, sentinel.ErrNotFound)
	}
	return nil
}

// ListPaidUnbibbed returns paid registrations of the race without a bib,
// ordered by registration time then ID.
func (s *InMemory) ListPaidUnbibbed(ctx context.Context, raceID id.RaceID) ([]*models.Registration, error) {
	defer s.rlock(ctx)()
	var out []*models.Registration
	for _, r := range s.registrations {
		if r.RaceID == raceID && r.PaymentStatus == models.PaymentStatusPaid && !r.HasBib() {
			cp := *r
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Registration) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out, nil
}

func (s *InMemory) ListBibNumbers(ctx context.Context, raceID id.RaceID) ([]string, error) {
	defer s.rlock(ctx)()
	var out []string
	for _, r := range s.registrations {
		if r.RaceID == raceID && r.HasBib() {
			out = append(out, r.BibNumber)
		}
	}
	return out, nil
}

// BulkSetBibNumbers writes every assignment or none. Each target must be paid,
// without a bib, and the bib must be free within its race.
func (s *InMemory) BulkSetBibNumbers(ctx context.Context, assignments []models.BibAssignment) error {
	defer s.lock(ctx)()

	taken := make(map[id.RaceID]map[string]bool)
	for _, r := range s.registrations {
		if !r.HasBib() {
			continue
		}
		if taken[r.RaceID] == nil {
			taken[r.RaceID] = make(map[string]bool)
		}
		taken[r.RaceID][r.BibNumber] = true
	}

	updates := make([]*models.Registration, 0, len(assignments))
	for _, a := range assignments {
		r, ok := s.registrations[a.RegistrationID]
		if !ok {
			return fmt.Errorf("registration %s: %w", a.RegistrationID, sentinel.ErrNotFound)
		}
		if r.PaymentStatus != models.PaymentStatusPaid || r.HasBib() {
			return fmt.Errorf("registration %s cannot take a bib: %w", a.RegistrationID, sentinel.ErrInvalidState)
		}
		if taken[r.RaceID] == nil {
			taken[r.RaceID] = make(map[string]bool)
		}
		if taken[r.RaceID][a.BibNumber] {
			return fmt.Errorf("bib %s in race %s: %w", a.BibNumber, r.RaceID, sentinel.ErrAlreadyUsed)
		}
		taken[r.RaceID][a.BibNumber] = true

		cp := *r
		cp.BibNumber = a.BibNumber
		cp.Version++
		updates = append(updates, &cp)
	}
	for _, u := range updates {
		s.registrations[u.ID] = u
	}
	return nil
}

func compareIDs(a, b id.RegistrationID) int {
	return slices.Compare(a[:], b[:])
}
