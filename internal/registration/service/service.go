package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"racereg/internal/payment/vnpay"
	"racereg/internal/registration/bib"
	"racereg/internal/registration/metrics"
	"racereg/internal/registration/models"
	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
	"racereg/pkg/platform/audit"
	"racereg/pkg/platform/sentinel"
	"racereg/pkg/requestcontext"
)

// Ledger is the persistent registration state. Every method takes the
// context it must run under; inside RunInTx that is the context passed to fn.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	FindRace(ctx context.Context, raceID id.RaceID) (*models.Race, error)
	FindDistance(ctx context.Context, distanceID id.DistanceID) (*models.Distance, error)
	FindRegistration(ctx context.Context, regID id.RegistrationID) (*models.Registration, error)
	CountActive(ctx context.Context, distanceID id.DistanceID) (int, error)
	ListByRunner(ctx context.Context, runnerID id.UserID) ([]*models.RegistrationDetails, error)

	TryInsertIfUnderCapacity(ctx context.Context, reg *models.Registration) error
	TransitionPaymentStatus(ctx context.Context, t models.Transition) (*models.Registration, error)

	LockRace(ctx context.Context, raceID id.RaceID) error
	ListPaidUnbibbed(ctx context.Context, raceID id.RaceID) ([]*models.Registration, error)
	ListBibNumbers(ctx context.Context, raceID id.RaceID) ([]string, error)
	BulkSetBibNumbers(ctx context.Context, assignments []models.BibAssignment) error
}

// Gateway signs payment redirect URLs.
type Gateway interface {
	PaymentURL(req vnpay.PaymentRequest) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// maxCASAttempts bounds how often a status change re-reads after losing a
// compare-and-set to a concurrent writer.
const maxCASAttempts = 3

// PaymentMethodVNPay is recorded on registrations settled through the gateway.
const PaymentMethodVNPay = "VNPAY"

// Service orchestrates registration, payment settlement and bib assignment.
// It holds no registration state; every call re-reads through the ledger.
type Service struct {
	ledger         Ledger
	gateway        Gateway
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	bibBase        int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithGateway enables CreatePaymentURL. Without it the operation reports
// CodeConfigurationMissing.
func WithGateway(g Gateway) Option {
	return func(s *Service) {
		s.gateway = g
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithBibBase sets the number bib allocation counts up from.
func WithBibBase(base int) Option {
	return func(s *Service) {
		s.bibBase = base
	}
}

// New constructs a Service.
func New(ledger Ledger, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	s := &Service{
		ledger:  ledger,
		logger:  slog.Default(),
		tracer:  otel.Tracer("racereg/registration"),
		bibBase: bib.DefaultBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bibBase < 0 {
		return nil, errors.New("bib base must not be negative")
	}
	return s, nil
}

// Register admits runnerID to distanceID when the race is open, the distance
// has not started, the runner holds no active entry and a slot is free.
func (s *Service) Register(ctx context.Context, runnerID id.UserID, distanceID id.DistanceID) (reg *models.Registration, err error) {
	ctx, span := s.startSpan(ctx, "registration.Register",
		attribute.String("runner_id", runnerID.String()),
		attribute.String("distance_id", distanceID.String()),
	)
	defer func() { s.endSpan(span, "register", err) }()

	if runnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)

	distance, err := s.ledger.FindDistance(ctx, distanceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementRegistrationOutcome("not_eligible")
			return nil, dErrors.New(dErrors.CodeNotEligible, "distance not found or not open for registration")
		}
		return nil, asDomainError(err, "failed to load distance")
	}
	race, err := s.ledger.FindRace(ctx, distance.RaceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementRegistrationOutcome("not_eligible")
			return nil, dErrors.New(dErrors.CodeNotEligible, "distance not found or not open for registration")
		}
		return nil, asDomainError(err, "failed to load race")
	}
	if !race.IsOpen() {
		s.metrics.IncrementRegistrationOutcome("not_eligible")
		return nil, dErrors.New(dErrors.CodeNotEligible, "race is not open for registration")
	}
	if distance.HasStarted(now) {
		s.metrics.IncrementRegistrationOutcome("not_eligible")
		return nil, dErrors.New(dErrors.CodeNotEligible, "distance has already started")
	}

	reg, err = models.NewRegistration(id.NewRegistrationID(), runnerID, distance, now)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.TryInsertIfUnderCapacity(ctx, reg); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			s.metrics.IncrementRegistrationOutcome("not_eligible")
			return nil, dErrors.New(dErrors.CodeNotEligible, "distance not found or not open for registration")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			s.metrics.IncrementRegistrationOutcome("already_registered")
			return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "runner is already registered for this distance")
		case errors.Is(err, sentinel.ErrCapacityExhausted):
			s.metrics.IncrementRegistrationOutcome("capacity_exceeded")
			return nil, dErrors.New(dErrors.CodeCapacityExceeded, "distance is full")
		}
		s.metrics.IncrementRegistrationOutcome("error")
		return nil, asDomainError(err, "failed to create registration")
	}

	s.metrics.IncrementRegistrationOutcome("created")
	s.logAudit(ctx, audit.EventRegistrationCreated, runnerID, reg.ID.String(),
		"distance_id", distanceID,
		"race_id", reg.RaceID,
	)
	return reg, nil
}

// Cancel cancels the runner's registration before its distance starts. A
// concurrent status change causes a re-read and a fresh decision.
func (s *Service) Cancel(ctx context.Context, regID id.RegistrationID, runnerID id.UserID) (err error) {
	ctx, span := s.startSpan(ctx, "registration.Cancel",
		attribute.String("registration_id", regID.String()),
	)
	defer func() { s.endSpan(span, "cancel", err) }()

	now := requestcontext.Now(ctx)
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		reg, err := s.findOwned(ctx, regID, runnerID)
		if err != nil {
			return err
		}
		distance, err := s.ledger.FindDistance(ctx, reg.DistanceID)
		if err != nil {
			return asDomainError(err, "failed to load distance")
		}
		if distance.HasStarted(now) {
			return dErrors.New(dErrors.CodeTooLate, "cannot cancel a registration once the distance has started")
		}
		if reg.PaymentStatus == models.PaymentStatusCancelled {
			return dErrors.New(dErrors.CodeAlreadyCancelled, "registration is already cancelled")
		}

		_, err = s.ledger.TransitionPaymentStatus(ctx, models.Transition{
			RegistrationID: reg.ID,
			From:           reg.PaymentStatus,
			To:             models.PaymentStatusCancelled,
			At:             now,
		})
		if errors.Is(err, sentinel.ErrInvalidState) {
			s.metrics.IncrementCASRetry("cancel")
			continue
		}
		if err != nil {
			return asDomainError(err, "failed to cancel registration")
		}

		s.metrics.IncrementCancellations()
		s.logAudit(ctx, audit.EventRegistrationCancelled, runnerID, reg.ID.String(),
			"previous_status", reg.PaymentStatus,
		)
		return nil
	}
	return dErrors.New(dErrors.CodeConflict, "registration changed concurrently, please retry")
}

// PaymentURLRequest asks for a signed gateway URL for one registration.
type PaymentURLRequest struct {
	RegistrationID id.RegistrationID
	RunnerID       id.UserID
	ClientIP       string
	// ReturnURL overrides the configured gateway return URL when non-empty.
	ReturnURL string
}

// CreatePaymentURL returns the gateway URL the runner is redirected to.
func (s *Service) CreatePaymentURL(ctx context.Context, req PaymentURLRequest) (paymentURL string, err error) {
	ctx, span := s.startSpan(ctx, "registration.CreatePaymentURL",
		attribute.String("registration_id", req.RegistrationID.String()),
	)
	defer func() { s.endSpan(span, "create_payment_url", err) }()

	reg, err := s.findOwned(ctx, req.RegistrationID, req.RunnerID)
	if err != nil {
		return "", err
	}
	switch reg.PaymentStatus {
	case models.PaymentStatusPaid:
		return "", dErrors.New(dErrors.CodeAlreadyPaid, "registration is already paid")
	case models.PaymentStatusCancelled:
		return "", dErrors.New(dErrors.CodeAlreadyCancelled, "registration has been cancelled")
	}
	if s.gateway == nil {
		return "", dErrors.New(dErrors.CodeConfigurationMissing, "payment gateway is not configured")
	}

	distance, err := s.ledger.FindDistance(ctx, reg.DistanceID)
	if err != nil {
		return "", asDomainError(err, "failed to load distance")
	}

	paymentURL, err = s.gateway.PaymentURL(vnpay.PaymentRequest{
		TxnRef:    reg.ID.String(),
		Amount:    distance.Fee.MinorUnits(),
		ClientIP:  req.ClientIP,
		ReturnURL: req.ReturnURL,
		CreatedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		return "", asDomainError(err, "failed to build payment url")
	}

	// Only Pending registrations get here, so resetting the status to
	// Pending is a no-op.
	s.metrics.IncrementPaymentURLsCreated()
	s.logAudit(ctx, audit.EventPaymentURLCreated, req.RunnerID, reg.ID.String(),
		"amount", distance.Fee.MinorUnits(),
	)
	return paymentURL, nil
}

// ConfirmPayment settles a registration. Repeating a confirmation with the
// transaction number already recorded succeeds without side effects.
func (s *Service) ConfirmPayment(ctx context.Context, regID id.RegistrationID, method, transactionNo string) (err error) {
	ctx, span := s.startSpan(ctx, "registration.ConfirmPayment",
		attribute.String("registration_id", regID.String()),
		attribute.String("transaction_no", transactionNo),
	)
	defer func() { s.endSpan(span, "confirm_payment", err) }()

	if transactionNo == "" {
		return dErrors.New(dErrors.CodeBadRequest, "transaction number is required")
	}
	now := requestcontext.Now(ctx)

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		reg, err := s.ledger.FindRegistration(ctx, regID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "registration not found")
			}
			return asDomainError(err, "failed to load registration")
		}

		switch reg.PaymentStatus {
		case models.PaymentStatusCancelled:
			return dErrors.New(dErrors.CodeAlreadyCancelled, "registration has been cancelled")
		case models.PaymentStatusPaid:
			if reg.SettledBy(transactionNo) {
				s.logger.InfoContext(ctx, "duplicate payment confirmation ignored",
					"registration_id", regID,
					"transaction_no", transactionNo,
					"request_id", requestcontext.RequestID(ctx),
				)
				return nil
			}
			return dErrors.New(dErrors.CodeAlreadyPaid, "registration is already paid")
		}

		_, err = s.ledger.TransitionPaymentStatus(ctx, models.Transition{
			RegistrationID: reg.ID,
			From:           models.PaymentStatusPending,
			To:             models.PaymentStatusPaid,
			At:             now,
			Payment:        &models.PaymentDetails{Method: method, TransactionNo: transactionNo},
		})
		if errors.Is(err, sentinel.ErrInvalidState) {
			s.metrics.IncrementCASRetry("confirm_payment")
			continue
		}
		if err != nil {
			return asDomainError(err, "failed to confirm payment")
		}

		s.metrics.IncrementPaymentsConfirmed()
		s.logAudit(ctx, audit.EventPaymentConfirmed, reg.RunnerID, reg.ID.String(),
			"transaction_no", transactionNo,
			"method", method,
		)
		return nil
	}
	return dErrors.New(dErrors.CodeConflict, "registration changed concurrently, please retry")
}

// PaymentTarget is what a gateway notification is checked against.
type PaymentTarget struct {
	Registration *models.Registration
	// Amount is the expected gateway amount in minor units.
	Amount int64
}

// LookupPayment returns a registration with the amount the gateway must
// report for it.
func (s *Service) LookupPayment(ctx context.Context, regID id.RegistrationID) (*PaymentTarget, error) {
	reg, err := s.ledger.FindRegistration(ctx, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, asDomainError(err, "failed to load registration")
	}
	distance, err := s.ledger.FindDistance(ctx, reg.DistanceID)
	if err != nil {
		return nil, asDomainError(err, "failed to load distance")
	}
	return &PaymentTarget{Registration: reg, Amount: distance.Fee.MinorUnits()}, nil
}

// AssignBibs numbers every paid, unnumbered registration of the race in
// registration order. Existing bibs are never changed.
func (s *Service) AssignBibs(ctx context.Context, raceID id.RaceID, organizerID id.UserID) (result models.BibAssignmentResult, err error) {
	ctx, span := s.startSpan(ctx, "registration.AssignBibs",
		attribute.String("race_id", raceID.String()),
	)
	defer func() { s.endSpan(span, "assign_bibs", err) }()

	race, err := s.ledger.FindRace(ctx, raceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return result, dErrors.New(dErrors.CodeNotFound, "race not found")
		}
		return result, asDomainError(err, "failed to load race")
	}
	if !race.OwnedBy(organizerID) {
		return result, dErrors.New(dErrors.CodeForbidden, "only the race organizer can assign bibs")
	}
	if !race.IsOpen() {
		return result, dErrors.New(dErrors.CodeNotEligible, "bibs can only be assigned for an approved race")
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.LockRace(ctx, raceID); err != nil {
			return err
		}
		candidates, err := s.ledger.ListPaidUnbibbed(ctx, raceID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			result = models.BibAssignmentResult{}
			return nil
		}
		existing, err := s.ledger.ListBibNumbers(ctx, raceID)
		if err != nil {
			return err
		}
		assignments := bib.Allocate(candidates, existing, s.bibBase)
		if err := s.ledger.BulkSetBibNumbers(ctx, assignments); err != nil {
			return err
		}
		result = bib.Summarize(assignments)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return models.BibAssignmentResult{}, dErrors.New(dErrors.CodeNotFound, "race not found")
		case errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrConflict):
			return models.BibAssignmentResult{}, dErrors.Wrap(err, dErrors.CodeConflict, "bib assignment conflicted with a concurrent change, please retry")
		}
		return models.BibAssignmentResult{}, asDomainError(err, "failed to assign bibs")
	}

	if result.Count > 0 {
		s.metrics.AddBibsAssigned(result.Count)
		s.logAudit(ctx, audit.EventBibsAssigned, organizerID, raceID.String(),
			"count", result.Count,
			"first_bib", result.FirstBib,
			"last_bib", result.LastBib,
		)
	}
	return result, nil
}

// ListMyRegistrations returns the runner's registrations, newest first.
func (s *Service) ListMyRegistrations(ctx context.Context, runnerID id.UserID) ([]models.RegistrationSummary, error) {
	if runnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	details, err := s.ledger.ListByRunner(ctx, runnerID)
	if err != nil {
		return nil, asDomainError(err, "failed to list registrations")
	}
	now := requestcontext.Now(ctx)
	out := make([]models.RegistrationSummary, 0, len(details))
	for _, d := range details {
		out = append(out, d.Summary(now))
	}
	return out, nil
}

// DistanceAvailability reports the live capacity of a distance.
func (s *Service) DistanceAvailability(ctx context.Context, distanceID id.DistanceID) (*models.Availability, error) {
	distance, err := s.ledger.FindDistance(ctx, distanceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "distance not found")
		}
		return nil, asDomainError(err, "failed to load distance")
	}
	current, err := s.ledger.CountActive(ctx, distanceID)
	if err != nil {
		return nil, asDomainError(err, "failed to count participants")
	}
	availability := models.NewAvailability(distance, current)
	return &availability, nil
}

// findOwned loads a registration and hides it from anyone but its runner.
func (s *Service) findOwned(ctx context.Context, regID id.RegistrationID, runnerID id.UserID) (*models.Registration, error) {
	reg, err := s.ledger.FindRegistration(ctx, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, asDomainError(err, "failed to load registration")
	}
	if !reg.OwnedBy(runnerID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	return reg, nil
}

// asDomainError keeps domain errors (transaction timeouts, invariant checks,
// gateway validation) and wraps anything else as internal.
func asDomainError(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *operationSpan) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &operationSpan{Span: span, start: time.Now()}
}

type operationSpan struct {
	trace.Span
	start time.Time
}

func (s *Service) endSpan(span *operationSpan, operation string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.GetCode(err)))
	}
	span.End()
	s.metrics.ObserveOperation(operation, time.Since(span.start))
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, userID id.UserID, subject string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	args := append(attributes,
		"user_id", userID,
		"subject", subject,
		"request_id", requestID,
		"event", string(event),
		"log_type", "audit",
	)
	s.logger.InfoContext(ctx, string(event), args...)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		UserID:    userID,
		Subject:   subject,
		Action:    string(event),
		IP:        requestcontext.ClientIP(ctx),
		RequestID: requestID,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event", string(event),
			"error", err,
		)
	}
}
