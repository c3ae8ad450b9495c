package service

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"racereg/internal/payment/vnpay"
	"racereg/internal/registration/models"
	"racereg/internal/registration/store/ledger"
	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
	"racereg/pkg/platform/audit"
	"racereg/pkg/platform/audit/publisher"
	auditmemory "racereg/pkg/platform/audit/store/memory"
	"racereg/pkg/requestcontext"
)

// ServiceSuite runs the service against the in-memory ledger so that the
// concurrency properties are exercised through the real locking code.
type ServiceSuite struct {
	suite.Suite
	ledger     *ledger.InMemory
	auditStore *auditmemory.InMemoryStore
	service    *Service
	now        time.Time
	organizer  id.UserID
	race       *models.Race
	distance   *models.Distance
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ledger = ledger.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.organizer = id.UserID(uuid.New())

	gateway, err := vnpay.NewGateway(vnpay.Config{
		BaseURL:    "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		TmnCode:    "RACETEST",
		HashSecret: "test-secret",
		ReturnURL:  "https://racereg.example/api/payment/vnpay-return",
	})
	s.Require().NoError(err)

	s.service, err = New(s.ledger,
		WithGateway(gateway),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)

	s.race = s.putRace(models.RaceStatusApproved)
	s.distance = s.putDistance(s.race, 20, s.now.Add(48*time.Hour))
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) putRace(status models.RaceStatus) *models.Race {
	race := &models.Race{
		ID:          id.RaceID(uuid.New()),
		OrganizerID: s.organizer,
		Name:        "Hanoi Half",
		Status:      status,
		RaceDate:    s.now.Add(48 * time.Hour),
	}
	s.Require().NoError(s.ledger.PutRace(context.Background(), race))
	return race
}

func (s *ServiceSuite) putDistance(race *models.Race, capacity int, start time.Time) *models.Distance {
	distance := &models.Distance{
		ID:              id.DistanceID(uuid.New()),
		RaceID:          race.ID,
		Name:            "21K",
		MaxParticipants: capacity,
		StartTime:       start,
		Fee:             models.VND(500000),
	}
	s.Require().NoError(s.ledger.PutDistance(context.Background(), distance))
	return distance
}

func (s *ServiceSuite) register(runner id.UserID, distance *models.Distance) *models.Registration {
	reg, err := s.service.Register(s.ctx(), runner, distance.ID)
	s.Require().NoError(err)
	return reg
}

func (s *ServiceSuite) status(regID id.RegistrationID) models.PaymentStatus {
	reg, err := s.ledger.FindRegistration(context.Background(), regID)
	s.Require().NoError(err)
	return reg.PaymentStatus
}

// ===== Register =====

func (s *ServiceSuite) TestRegister() {
	s.Run("creates a pending registration", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)

		s.Equal(models.PaymentStatusPending, reg.PaymentStatus)
		s.Equal(s.race.ID, reg.RaceID)
		s.Equal(s.now, reg.RegisteredAt)
		s.Empty(reg.BibNumber)
		s.Len(s.auditStore.ListByAction(context.Background(), audit.EventRegistrationCreated), 1)
	})

	s.Run("duplicate active registration is rejected", func() {
		runner := id.UserID(uuid.New())
		s.register(runner, s.distance)

		_, err := s.service.Register(s.ctx(), runner, s.distance.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRegistered))
	})

	s.Run("runner may register again after cancelling", func() {
		runner := id.UserID(uuid.New())
		first := s.register(runner, s.distance)
		s.Require().NoError(s.service.Cancel(s.ctx(), first.ID, runner))

		second := s.register(runner, s.distance)
		s.NotEqual(first.ID, second.ID)
		s.Equal(models.PaymentStatusCancelled, s.status(first.ID))
	})

	s.Run("unknown distance is not eligible", func() {
		_, err := s.service.Register(s.ctx(), id.UserID(uuid.New()), id.DistanceID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	s.Run("race that is not approved is not eligible", func() {
		pending := s.putRace(models.RaceStatusPending)
		distance := s.putDistance(pending, 10, s.now.Add(time.Hour))

		_, err := s.service.Register(s.ctx(), id.UserID(uuid.New()), distance.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	s.Run("distance that has started is not eligible", func() {
		distance := s.putDistance(s.race, 10, s.now)

		_, err := s.service.Register(s.ctx(), id.UserID(uuid.New()), distance.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	s.Run("anonymous runner is unauthorized", func() {
		_, err := s.service.Register(s.ctx(), id.UserID(uuid.Nil), s.distance.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// TestRegister_CapacityUnderConcurrency
//
// Justification: the capacity check and the insert must be one atomic step.
// Many more runners than slots register at once; exactly capacity succeed.
func (s *ServiceSuite) TestRegister_CapacityUnderConcurrency() {
	const capacity = 5
	const runners = 4 * capacity
	distance := s.putDistance(s.race, capacity, s.now.Add(time.Hour))

	var wg sync.WaitGroup
	var created, full, other atomic.Int32
	start := make(chan struct{})
	for range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.service.Register(s.ctx(), id.UserID(uuid.New()), distance.ID)
			switch {
			case err == nil:
				created.Add(1)
			case dErrors.HasCode(err, dErrors.CodeCapacityExceeded):
				full.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(capacity), created.Load())
	s.Equal(int32(runners-capacity), full.Load())
	s.Zero(other.Load())

	count, err := s.ledger.CountActive(context.Background(), distance.ID)
	s.Require().NoError(err)
	s.Equal(capacity, count)
}

func (s *ServiceSuite) TestRegister_LastSlotRace() {
	distance := s.putDistance(s.race, 1, s.now.Add(time.Hour))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Register(s.ctx(), id.UserID(uuid.New()), distance.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
	}
	s.Equal(1, succeeded)
}

func (s *ServiceSuite) TestRegister_CancelledEntriesFreeCapacity() {
	distance := s.putDistance(s.race, 1, s.now.Add(time.Hour))
	first := id.UserID(uuid.New())
	reg := s.register(first, distance)

	_, err := s.service.Register(s.ctx(), id.UserID(uuid.New()), distance.ID)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))

	s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, first))
	s.register(id.UserID(uuid.New()), distance)
}

// ===== Cancel =====

func (s *ServiceSuite) TestCancel() {
	s.Run("pending registration is cancelled", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)

		s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, runner))

		stored, err := s.ledger.FindRegistration(context.Background(), reg.ID)
		s.Require().NoError(err)
		s.Equal(models.PaymentStatusCancelled, stored.PaymentStatus)
		s.Require().NotNil(stored.CancelledAt)
		s.Len(s.auditStore.ListByAction(context.Background(), audit.EventRegistrationCancelled), 1)
	})

	s.Run("paid registration can be cancelled", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "TXN-PAID"))

		s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, runner))
		s.Equal(models.PaymentStatusCancelled, s.status(reg.ID))
	})

	s.Run("second cancel reports already cancelled", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)
		s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, runner))

		err := s.service.Cancel(s.ctx(), reg.ID, runner)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyCancelled))
	})

	s.Run("another runner sees not found", func() {
		reg := s.register(id.UserID(uuid.New()), s.distance)

		err := s.service.Cancel(s.ctx(), reg.ID, id.UserID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(models.PaymentStatusPending, s.status(reg.ID))
	})

	s.Run("unknown registration is not found", func() {
		err := s.service.Cancel(s.ctx(), id.NewRegistrationID(), id.UserID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("cancel after the start is too late", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)
		late := requestcontext.WithTime(context.Background(), s.distance.StartTime)

		err := s.service.Cancel(late, reg.ID, runner)
		s.True(dErrors.HasCode(err, dErrors.CodeTooLate))
		s.Equal(models.PaymentStatusPending, s.status(reg.ID))
	})

	s.Run("too late is reported before already cancelled", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)
		s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, runner))
		late := requestcontext.WithTime(context.Background(), s.distance.StartTime.Add(time.Minute))

		err := s.service.Cancel(late, reg.ID, runner)
		s.True(dErrors.HasCode(err, dErrors.CodeTooLate))
	})
}

// ===== Payment =====

func (s *ServiceSuite) TestCreatePaymentURL() {
	s.Run("signed url carries the fee in minor units", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)

		raw, err := s.service.CreatePaymentURL(s.ctx(), PaymentURLRequest{
			RegistrationID: reg.ID,
			RunnerID:       runner,
			ClientIP:       "::1",
		})
		s.Require().NoError(err)

		u, err := url.Parse(raw)
		s.Require().NoError(err)
		q := u.Query()
		s.Equal("50000000", q.Get(vnpay.ParamAmount))
		s.Equal(reg.ID.String(), q.Get(vnpay.ParamTxnRef))
		s.Equal("127.0.0.1", q.Get(vnpay.ParamIPAddr))
		s.Equal("20260301160000", q.Get(vnpay.ParamCreateDate))
		s.NotEmpty(q.Get(vnpay.ParamSecureHash))
		s.Equal(models.PaymentStatusPending, s.status(reg.ID))
	})

	s.Run("return url override is used", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)

		raw, err := s.service.CreatePaymentURL(s.ctx(), PaymentURLRequest{
			RegistrationID: reg.ID,
			RunnerID:       runner,
			ReturnURL:      "https://mobile.racereg.example/return",
		})
		s.Require().NoError(err)
		u, err := url.Parse(raw)
		s.Require().NoError(err)
		s.Equal("https://mobile.racereg.example/return", u.Query().Get(vnpay.ParamReturnURL))
	})

	s.Run("paid registration is rejected", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "TXN-URL"))

		_, err := s.service.CreatePaymentURL(s.ctx(), PaymentURLRequest{RegistrationID: reg.ID, RunnerID: runner})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyPaid))
	})

	s.Run("cancelled registration is rejected", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)
		s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, runner))

		_, err := s.service.CreatePaymentURL(s.ctx(), PaymentURLRequest{RegistrationID: reg.ID, RunnerID: runner})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyCancelled))
	})

	s.Run("another runner sees not found", func() {
		reg := s.register(id.UserID(uuid.New()), s.distance)

		_, err := s.service.CreatePaymentURL(s.ctx(), PaymentURLRequest{RegistrationID: reg.ID, RunnerID: id.UserID(uuid.New())})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing gateway reports configuration missing", func() {
		bare, err := New(s.ledger)
		s.Require().NoError(err)
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)

		_, err = bare.CreatePaymentURL(s.ctx(), PaymentURLRequest{RegistrationID: reg.ID, RunnerID: runner})
		s.True(dErrors.HasCode(err, dErrors.CodeConfigurationMissing))
	})
}

func (s *ServiceSuite) TestConfirmPayment() {
	s.Run("pending registration becomes paid", func() {
		reg := s.register(id.UserID(uuid.New()), s.distance)

		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "14000001"))

		stored, err := s.ledger.FindRegistration(context.Background(), reg.ID)
		s.Require().NoError(err)
		s.Equal(models.PaymentStatusPaid, stored.PaymentStatus)
		s.Equal("14000001", stored.TransactionNo)
		s.Equal(PaymentMethodVNPay, stored.PaymentMethod)
		s.Require().NotNil(stored.PaidAt)
		s.Equal(s.now, *stored.PaidAt)
	})

	s.Run("repeated confirmation with the same transaction is a no-op", func() {
		reg := s.register(id.UserID(uuid.New()), s.distance)
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "14000002"))
		before, err := s.ledger.FindRegistration(context.Background(), reg.ID)
		s.Require().NoError(err)

		later := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
		s.Require().NoError(s.service.ConfirmPayment(later, reg.ID, PaymentMethodVNPay, "14000002"))

		after, err := s.ledger.FindRegistration(context.Background(), reg.ID)
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("different transaction on a paid registration is rejected", func() {
		reg := s.register(id.UserID(uuid.New()), s.distance)
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "14000003"))

		err := s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "14000099")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyPaid))
	})

	s.Run("cancelled registration stays cancelled", func() {
		runner := id.UserID(uuid.New())
		reg := s.register(runner, s.distance)
		s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, runner))

		err := s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "14000004")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyCancelled))
		s.Equal(models.PaymentStatusCancelled, s.status(reg.ID))
	})

	s.Run("unknown registration is not found", func() {
		err := s.service.ConfirmPayment(s.ctx(), id.NewRegistrationID(), PaymentMethodVNPay, "14000005")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty transaction number is a bad request", func() {
		reg := s.register(id.UserID(uuid.New()), s.distance)

		err := s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// TestConfirmPayment_ConcurrentDuplicates
//
// Justification: the return redirect and the IPN routinely arrive together.
// Both must succeed and the registration is paid exactly once.
func (s *ServiceSuite) TestConfirmPayment_ConcurrentDuplicates() {
	reg := s.register(id.UserID(uuid.New()), s.distance)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "14000010"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	s.Len(s.auditStore.ListByAction(context.Background(), audit.EventPaymentConfirmed), 1)
}

func (s *ServiceSuite) TestLookupPayment() {
	reg := s.register(id.UserID(uuid.New()), s.distance)

	target, err := s.service.LookupPayment(s.ctx(), reg.ID)
	s.Require().NoError(err)
	s.Equal(reg.ID, target.Registration.ID)
	s.Equal(int64(50000000), target.Amount)

	_, err = s.service.LookupPayment(s.ctx(), id.NewRegistrationID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// ===== Bibs =====

func (s *ServiceSuite) TestAssignBibs() {
	s.Run("paid registrations are numbered in registration order", func() {
		race := s.putRace(models.RaceStatusApproved)
		distance := s.putDistance(race, 10, s.now.Add(time.Hour))

		var regs []*models.Registration
		for i := range 3 {
			at := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Second))
			reg, err := s.service.Register(at, id.UserID(uuid.New()), distance.ID)
			s.Require().NoError(err)
			regs = append(regs, reg)
		}
		// Paid out of order; numbering still follows registration time.
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), regs[2].ID, PaymentMethodVNPay, "B-3"))
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), regs[0].ID, PaymentMethodVNPay, "B-1"))

		result, err := s.service.AssignBibs(s.ctx(), race.ID, s.organizer)
		s.Require().NoError(err)
		s.Equal(models.BibAssignmentResult{Count: 2, FirstBib: "1001", LastBib: "1002"}, result)
		s.Len(s.auditStore.ListByAction(context.Background(), audit.EventBibsAssigned), 1)

		first, _ := s.ledger.FindRegistration(context.Background(), regs[0].ID)
		third, _ := s.ledger.FindRegistration(context.Background(), regs[2].ID)
		pending, _ := s.ledger.FindRegistration(context.Background(), regs[1].ID)
		s.Equal("1001", first.BibNumber)
		s.Equal("1002", third.BibNumber)
		s.Empty(pending.BibNumber)

		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), regs[1].ID, PaymentMethodVNPay, "B-2"))
		result, err = s.service.AssignBibs(s.ctx(), race.ID, s.organizer)
		s.Require().NoError(err)
		s.Equal(models.BibAssignmentResult{Count: 1, FirstBib: "1003", LastBib: "1003"}, result)

		first, _ = s.ledger.FindRegistration(context.Background(), regs[0].ID)
		s.Equal("1001", first.BibNumber, "existing bibs never change")
	})

	s.Run("nothing to assign returns an empty result", func() {
		race := s.putRace(models.RaceStatusApproved)
		s.putDistance(race, 10, s.now.Add(time.Hour))

		result, err := s.service.AssignBibs(s.ctx(), race.ID, s.organizer)
		s.Require().NoError(err)
		s.Zero(result.Count)
		s.Empty(result.FirstBib)
		s.Empty(result.LastBib)
	})

	s.Run("cancelled registrations are skipped", func() {
		race := s.putRace(models.RaceStatusApproved)
		distance := s.putDistance(race, 10, s.now.Add(time.Hour))
		runner := id.UserID(uuid.New())
		reg := s.register(runner, distance)
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, "B-C"))
		s.Require().NoError(s.service.Cancel(s.ctx(), reg.ID, runner))

		result, err := s.service.AssignBibs(s.ctx(), race.ID, s.organizer)
		s.Require().NoError(err)
		s.Zero(result.Count)
	})

	s.Run("bibs are unique across the whole race", func() {
		race := s.putRace(models.RaceStatusApproved)
		short := s.putDistance(race, 10, s.now.Add(time.Hour))
		long := s.putDistance(race, 10, s.now.Add(2*time.Hour))
		for _, d := range []*models.Distance{short, long, short, long} {
			reg := s.register(id.UserID(uuid.New()), d)
			s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, reg.ID.String()))
		}

		result, err := s.service.AssignBibs(s.ctx(), race.ID, s.organizer)
		s.Require().NoError(err)
		s.Equal(4, result.Count)

		bibs, err := s.ledger.ListBibNumbers(context.Background(), race.ID)
		s.Require().NoError(err)
		s.ElementsMatch([]string{"1001", "1002", "1003", "1004"}, bibs)
	})

	s.Run("only the organizer may assign", func() {
		_, err := s.service.AssignBibs(s.ctx(), s.race.ID, id.UserID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown race is not found", func() {
		_, err := s.service.AssignBibs(s.ctx(), id.RaceID(uuid.New()), s.organizer)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("race that is not approved is not eligible", func() {
		race := s.putRace(models.RaceStatusCancelled)

		_, err := s.service.AssignBibs(s.ctx(), race.ID, s.organizer)
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})
}

// TestAssignBibs_ConcurrentBatches
//
// Justification: two organizer sessions assigning at once must not hand out
// the same number twice.
func (s *ServiceSuite) TestAssignBibs_ConcurrentBatches() {
	race := s.putRace(models.RaceStatusApproved)
	distance := s.putDistance(race, 50, s.now.Add(time.Hour))
	for range 20 {
		reg := s.register(id.UserID(uuid.New()), distance)
		s.Require().NoError(s.service.ConfirmPayment(s.ctx(), reg.ID, PaymentMethodVNPay, reg.ID.String()))
	}

	var wg sync.WaitGroup
	var assigned atomic.Int32
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.AssignBibs(s.ctx(), race.ID, s.organizer)
			if err == nil {
				assigned.Add(int32(result.Count))
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(20), assigned.Load())
	bibs, err := s.ledger.ListBibNumbers(context.Background(), race.ID)
	s.Require().NoError(err)
	seen := make(map[string]bool, len(bibs))
	for _, b := range bibs {
		s.False(seen[b], "bib %s assigned twice", b)
		seen[b] = true
	}
	s.Len(seen, 20)
}

// ===== Queries =====

func (s *ServiceSuite) TestListMyRegistrations() {
	runner := id.UserID(uuid.New())
	older := s.register(runner, s.distance)
	other := s.putDistance(s.race, 10, s.now.Add(time.Hour))
	newerCtx := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
	newer, err := s.service.Register(newerCtx, runner, other.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.service.Cancel(s.ctx(), older.ID, runner))
	s.register(id.UserID(uuid.New()), s.distance)

	list, err := s.service.ListMyRegistrations(s.ctx(), runner)
	s.Require().NoError(err)
	s.Require().Len(list, 2)

	s.Equal(newer.ID, list[0].ID)
	s.Equal("Hanoi Half", list[0].RaceName)
	s.Equal("Pending payment", list[0].DisplayStatus)
	s.True(list[0].CanCancel)

	s.Equal(older.ID, list[1].ID)
	s.Equal(models.PaymentStatusCancelled, list[1].PaymentStatus)
	s.False(list[1].CanCancel)

	_, err = s.service.ListMyRegistrations(s.ctx(), id.UserID(uuid.Nil))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestDistanceAvailability() {
	distance := s.putDistance(s.race, 2, s.now.Add(time.Hour))

	availability, err := s.service.DistanceAvailability(s.ctx(), distance.ID)
	s.Require().NoError(err)
	s.Equal(2, availability.AvailableSlots)
	s.False(availability.IsFull)

	s.register(id.UserID(uuid.New()), distance)
	s.register(id.UserID(uuid.New()), distance)

	availability, err = s.service.DistanceAvailability(s.ctx(), distance.ID)
	s.Require().NoError(err)
	s.Equal(2, availability.CurrentParticipants)
	s.Zero(availability.AvailableSlots)
	s.True(availability.IsFull)

	_, err = s.service.DistanceAvailability(s.ctx(), id.DistanceID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)

	_, err = New(s.ledger, WithBibBase(-1))
	s.Error(err)
}
