package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racereg/internal/registration/models"
	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
	"racereg/pkg/platform/sentinel"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seeded(t *testing.T, capacity int) (*InMemory, *models.Distance) {
	t.Helper()
	s := NewInMemory()
	race := &models.Race{ID: id.RaceID(uuid.New()), OrganizerID: id.UserID(uuid.New()), Name: "Da Nang Trail", Status: models.RaceStatusApproved}
	require.NoError(t, s.PutRace(context.Background(), race))
	d := &models.Distance{
		ID:              id.DistanceID(uuid.New()),
		RaceID:          race.ID,
		Name:            "10K",
		MaxParticipants: capacity,
		StartTime:       baseTime.Add(24 * time.Hour),
		Fee:             models.VND(200000),
	}
	require.NoError(t, s.PutDistance(context.Background(), d))
	return s, d
}

func newReg(t *testing.T, d *models.Distance, runner id.UserID, at time.Time) *models.Registration {
	t.Helper()
	reg, err := models.NewRegistration(id.NewRegistrationID(), runner, d, at)
	require.NoError(t, err)
	return reg
}

func TestInMemory_TryInsertIfUnderCapacity(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects when full", func(t *testing.T) {
		s, d := seeded(t, 1)
		require.NoError(t, s.TryInsertIfUnderCapacity(ctx, newReg(t, d, id.UserID(uuid.New()), baseTime)))

		err := s.TryInsertIfUnderCapacity(ctx, newReg(t, d, id.UserID(uuid.New()), baseTime))
		assert.ErrorIs(t, err, sentinel.ErrCapacityExhausted)
	})

	t.Run("duplicate is reported before capacity", func(t *testing.T) {
		s, d := seeded(t, 1)
		runner := id.UserID(uuid.New())
		require.NoError(t, s.TryInsertIfUnderCapacity(ctx, newReg(t, d, runner, baseTime)))

		err := s.TryInsertIfUnderCapacity(ctx, newReg(t, d, runner, baseTime))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("unknown distance", func(t *testing.T) {
		s, d := seeded(t, 1)
		reg := newReg(t, d, id.UserID(uuid.New()), baseTime)
		reg.DistanceID = id.DistanceID(uuid.New())

		assert.ErrorIs(t, s.TryInsertIfUnderCapacity(ctx, reg), sentinel.ErrNotFound)
	})

	t.Run("stored copy is isolated from the caller", func(t *testing.T) {
		s, d := seeded(t, 1)
		reg := newReg(t, d, id.UserID(uuid.New()), baseTime)
		require.NoError(t, s.TryInsertIfUnderCapacity(ctx, reg))
		reg.BibNumber = "9999"

		stored, err := s.FindRegistration(ctx, reg.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.BibNumber)
	})
}

func TestInMemory_TransitionPaymentStatus(t *testing.T) {
	ctx := context.Background()
	s, d := seeded(t, 5)
	reg := newReg(t, d, id.UserID(uuid.New()), baseTime)
	require.NoError(t, s.TryInsertIfUnderCapacity(ctx, reg))

	t.Run("stale from status is rejected", func(t *testing.T) {
		_, err := s.TransitionPaymentStatus(ctx, models.Transition{
			RegistrationID: reg.ID,
			From:           models.PaymentStatusPaid,
			To:             models.PaymentStatusCancelled,
			At:             baseTime,
		})
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("illegal transition is an invariant violation", func(t *testing.T) {
		_, err := s.TransitionPaymentStatus(ctx, models.Transition{
			RegistrationID: reg.ID,
			From:           models.PaymentStatusCancelled,
			To:             models.PaymentStatusPaid,
			At:             baseTime,
			Payment:        &models.PaymentDetails{TransactionNo: "x"},
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("pending to paid records payment", func(t *testing.T) {
		updated, err := s.TransitionPaymentStatus(ctx, models.Transition{
			RegistrationID: reg.ID,
			From:           models.PaymentStatusPending,
			To:             models.PaymentStatusPaid,
			At:             baseTime.Add(time.Minute),
			Payment:        &models.PaymentDetails{Method: "VNPAY", TransactionNo: "T1"},
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
		assert.Equal(t, "T1", updated.TransactionNo)
		assert.Equal(t, 2, updated.Version)
	})

	t.Run("unknown registration", func(t *testing.T) {
		_, err := s.TransitionPaymentStatus(ctx, models.Transition{
			RegistrationID: id.NewRegistrationID(),
			From:           models.PaymentStatusPending,
			To:             models.PaymentStatusCancelled,
		})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemory_RunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("failure restores registrations", func(t *testing.T) {
		s, d := seeded(t, 5)
		boom := errors.New("boom")

		err := s.RunInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.TryInsertIfUnderCapacity(ctx, newReg(t, d, id.UserID(uuid.New()), baseTime)))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		count, err := s.CountActive(ctx, d.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		s, d := seeded(t, 5)
		err := s.RunInTx(ctx, func(ctx context.Context) error {
			return s.RunInTx(ctx, func(ctx context.Context) error {
				return s.TryInsertIfUnderCapacity(ctx, newReg(t, d, id.UserID(uuid.New()), baseTime))
			})
		})
		require.NoError(t, err)

		count, err := s.CountActive(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("cancelled context is a timeout", func(t *testing.T) {
		s, _ := seeded(t, 5)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := s.RunInTx(cancelled, func(context.Context) error { return nil })
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func TestInMemory_Bibs(t *testing.T) {
	ctx := context.Background()
	s, d := seeded(t, 5)

	var paid []*models.Registration
	for i := range 3 {
		reg := newReg(t, d, id.UserID(uuid.New()), baseTime.Add(time.Duration(3-i)*time.Second))
		require.NoError(t, s.TryInsertIfUnderCapacity(ctx, reg))
		_, err := s.TransitionPaymentStatus(ctx, models.Transition{
			RegistrationID: reg.ID,
			From:           models.PaymentStatusPending,
			To:             models.PaymentStatusPaid,
			At:             baseTime,
			Payment:        &models.PaymentDetails{Method: "VNPAY", TransactionNo: reg.ID.String()},
		})
		require.NoError(t, err)
		paid = append(paid, reg)
	}

	t.Run("candidates are ordered by registration time", func(t *testing.T) {
		got, err := s.ListPaidUnbibbed(ctx, d.RaceID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, paid[2].ID, got[0].ID)
		assert.Equal(t, paid[0].ID, got[2].ID)
	})

	t.Run("duplicate bib within a batch writes nothing", func(t *testing.T) {
		err := s.BulkSetBibNumbers(ctx, []models.BibAssignment{
			{RegistrationID: paid[0].ID, BibNumber: "1001"},
			{RegistrationID: paid[1].ID, BibNumber: "1001"},
		})
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

		bibs, err := s.ListBibNumbers(ctx, d.RaceID)
		require.NoError(t, err)
		assert.Empty(t, bibs)
	})

	t.Run("bib is set once", func(t *testing.T) {
		require.NoError(t, s.BulkSetBibNumbers(ctx, []models.BibAssignment{{RegistrationID: paid[0].ID, BibNumber: "1001"}}))

		err := s.BulkSetBibNumbers(ctx, []models.BibAssignment{{RegistrationID: paid[0].ID, BibNumber: "1002"}})
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)

		reg, err := s.FindRegistration(ctx, paid[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "1001", reg.BibNumber)
	})

	t.Run("lock on unknown race", func(t *testing.T) {
		assert.ErrorIs(t, s.LockRace(ctx, id.RaceID(uuid.New())), sentinel.ErrNotFound)
	})
}

func TestSeedDemoRace(t *testing.T) {
	s := NewInMemory()
	organizer := id.UserID(uuid.New())

	race, distances, err := SeedDemoRace(context.Background(), s, organizer, baseTime)
	require.NoError(t, err)

	stored, err := s.FindRace(context.Background(), race.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsOpen())
	assert.True(t, stored.OwnedBy(organizer))
	require.Len(t, distances, 2)
	for _, d := range distances {
		assert.False(t, d.HasStarted(baseTime))
	}
}
