package audit

import (
	"context"
	"time"

	id "racereg/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// Consumers of the audit topic route on it.
type EventCategory string

const (
	// CategoryCompliance covers money movement and entry changes that must be
	// reconstructable later: registrations, cancellations, settlements.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events for fraud review and alerting, such as
	// gateway callbacks with a bad signature.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string        `json:"id,omitempty"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    id.UserID     `json:"user_id"`
	// Subject is the entity acted on: a registration, race or transaction reference.
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	IP        string `json:"ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventRegistrationCreated     AuditEvent = "registration_created"
	EventRegistrationCancelled   AuditEvent = "registration_cancelled"
	EventPaymentURLCreated       AuditEvent = "payment_url_created"
	EventPaymentConfirmed        AuditEvent = "payment_confirmed"
	EventPaymentFailed           AuditEvent = "payment_failed"
	EventPaymentSignatureInvalid AuditEvent = "payment_signature_invalid"
	EventBibsAssigned            AuditEvent = "bibs_assigned"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistrationCreated:   CategoryCompliance,
	EventRegistrationCancelled: CategoryCompliance,
	EventPaymentConfirmed:      CategoryCompliance,
	EventBibsAssigned:          CategoryCompliance,

	EventPaymentSignatureInvalid: CategorySecurity,

	EventPaymentURLCreated: CategoryOperations,
	EventPaymentFailed:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader is implemented by sinks that can be queried back.
type Reader interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
