package models

import (
	"time"

	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
)

// PaymentStatus is the settlement state of a registration.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusPaid      PaymentStatus = "Paid"
	PaymentStatusCancelled PaymentStatus = "Cancelled"
)

// CanTransitionTo reports whether the status machine allows s → next.
// Pending → Paid | Cancelled, Paid → Cancelled. Cancelled is terminal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusPaid || next == PaymentStatusCancelled
	case PaymentStatusPaid:
		return next == PaymentStatusCancelled
	default:
		return false
	}
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusCancelled:
		return true
	}
	return false
}

// DisplayName is the label shown to runners.
func (s PaymentStatus) DisplayName() string {
	switch s {
	case PaymentStatusPending:
		return "Pending payment"
	case PaymentStatusPaid:
		return "Paid"
	case PaymentStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// Registration is one runner's entry in one race distance.
//
// Invariants:
//   - (RunnerID, DistanceID) is unique among non-cancelled registrations
//   - RegisteredAt is immutable
//   - PaymentMethod, TransactionNo and PaidAt are set only on entering Paid
//   - BibNumber is set at most once, and only while Paid
type Registration struct {
	ID            id.RegistrationID `json:"id"`
	RunnerID      id.UserID         `json:"runner_id"`
	DistanceID    id.DistanceID     `json:"distance_id"`
	RaceID        id.RaceID         `json:"race_id"`
	RegisteredAt  time.Time         `json:"registered_at"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	BibNumber     string            `json:"bib_number,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	TransactionNo string            `json:"transaction_no,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	Version       int               `json:"-"`
}

// NewRegistration builds a pending registration of runnerID for distance.
func NewRegistration(regID id.RegistrationID, runnerID id.UserID, distance *Distance, now time.Time) (*Registration, error) {
	if regID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration ID cannot be nil")
	}
	if runnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "runner ID cannot be nil")
	}
	if distance == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "distance is required")
	}
	return &Registration{
		ID:            regID,
		RunnerID:      runnerID,
		DistanceID:    distance.ID,
		RaceID:        distance.RaceID,
		RegisteredAt:  now,
		PaymentStatus: PaymentStatusPending,
		Version:       1,
	}, nil
}

func (r *Registration) OwnedBy(runnerID id.UserID) bool { return r.RunnerID == runnerID }

func (r *Registration) IsActive() bool { return r.PaymentStatus != PaymentStatusCancelled }

func (r *Registration) HasBib() bool { return r.BibNumber != "" }

// SettledBy reports whether the registration was paid by transactionNo.
func (r *Registration) SettledBy(transactionNo string) bool {
	return r.PaymentStatus == PaymentStatusPaid && r.TransactionNo == transactionNo
}

// PaymentDetails is recorded on the transition into Paid.
type PaymentDetails struct {
	Method        string
	TransactionNo string
}

// Transition is a compare-and-set on PaymentStatus: it applies only while the
// stored status still equals From.
type Transition struct {
	RegistrationID id.RegistrationID
	From           PaymentStatus
	To             PaymentStatus
	At             time.Time
	Payment        *PaymentDetails
}

func (t Transition) Validate() error {
	if t.RegistrationID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "registration ID cannot be nil")
	}
	if t.From == t.To {
		return nil
	}
	if !t.From.CanTransitionTo(t.To) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"payment status cannot move from "+string(t.From)+" to "+string(t.To))
	}
	if t.To == PaymentStatusPaid && (t.Payment == nil || t.Payment.TransactionNo == "") {
		return dErrors.New(dErrors.CodeInvariantViolation, "paid transition requires a transaction number")
	}
	return nil
}

// Apply mutates r according to t. Callers check r.PaymentStatus == t.From
// first; stores do that under their lock or in the UPDATE predicate.
func (r *Registration) Apply(t Transition) {
	r.PaymentStatus = t.To
	switch t.To {
	case PaymentStatusPaid:
		at := t.At
		r.PaidAt = &at
		r.PaymentMethod = t.Payment.Method
		r.TransactionNo = t.Payment.TransactionNo
	case PaymentStatusCancelled:
		at := t.At
		r.CancelledAt = &at
	}
	r.Version++
}

// BibAssignment pairs a registration with the bib it receives.
type BibAssignment struct {
	RegistrationID id.RegistrationID
	BibNumber      string
}

// BibAssignmentResult summarises one AssignBibs batch. FirstBib and LastBib
// are empty when nothing was assigned.
type BibAssignmentResult struct {
	Count    int    `json:"count"`
	FirstBib string `json:"first_bib,omitempty"`
	LastBib  string `json:"last_bib,omitempty"`
}

// RegistrationDetails is a registration joined with the race and distance
// fields shown in a runner's registration list.
type RegistrationDetails struct {
	Registration
	RaceName     string
	DistanceName string
	StartTime    time.Time
	Fee          Money
}

// CanCancel reports whether the runner may still cancel at now.
func (d *RegistrationDetails) CanCancel(now time.Time) bool {
	return d.IsActive() && d.StartTime.After(now)
}

// RegistrationSummary is the runner-facing view of one registration.
type RegistrationSummary struct {
	ID            id.RegistrationID `json:"id"`
	RaceID        id.RaceID         `json:"race_id"`
	RaceName      string            `json:"race_name"`
	DistanceID    id.DistanceID     `json:"distance_id"`
	DistanceName  string            `json:"distance_name"`
	StartTime     time.Time         `json:"start_time"`
	Fee           Money             `json:"fee"`
	RegisteredAt  time.Time         `json:"registered_at"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	DisplayStatus string            `json:"display_status"`
	BibNumber     string            `json:"bib_number,omitempty"`
	CanCancel     bool              `json:"can_cancel"`
}

func (d *RegistrationDetails) Summary(now time.Time) RegistrationSummary {
	return RegistrationSummary{
		ID:            d.ID,
		RaceID:        d.RaceID,
		RaceName:      d.RaceName,
		DistanceID:    d.DistanceID,
		DistanceName:  d.DistanceName,
		StartTime:     d.StartTime,
		Fee:           d.Fee,
		RegisteredAt:  d.RegisteredAt,
		PaymentStatus: d.PaymentStatus,
		DisplayStatus: d.PaymentStatus.DisplayName(),
		BibNumber:     d.BibNumber,
		CanCancel:     d.CanCancel(now),
	}
}
