package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registration, cancellation and bib
// assignment. All helpers are safe on a nil receiver.
type Metrics struct {
	RegistrationOutcome *prometheus.CounterVec
	Cancellations       prometheus.Counter
	PaymentURLsCreated  prometheus.Counter
	PaymentsConfirmed   prometheus.Counter
	BibsAssigned        prometheus.Counter
	CASRetries          *prometheus.CounterVec
	OperationLatency    *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		RegistrationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "racereg_registration_attempts_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}), // created, already_registered, capacity_exceeded, not_eligible, error

		Cancellations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_registrations_cancelled_total",
			Help: "Registrations cancelled by runners",
		}),

		PaymentURLsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_payment_urls_created_total",
			Help: "Signed gateway payment URLs handed out",
		}),

		PaymentsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_payments_confirmed_total",
			Help: "Registrations moved to Paid",
		}),

		BibsAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_bibs_assigned_total",
			Help: "Bib numbers assigned across all races",
		}),

		CASRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "racereg_status_cas_retries_total",
			Help: "Payment status compare-and-set conflicts that were retried",
		}, []string{"operation"}),

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "racereg_registration_operation_duration_seconds",
			Help:    "Duration of registration service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementRegistrationOutcome(outcome string) {
	if m != nil {
		m.RegistrationOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementCancellations() {
	if m != nil {
		m.Cancellations.Inc()
	}
}

func (m *Metrics) IncrementPaymentURLsCreated() {
	if m != nil {
		m.PaymentURLsCreated.Inc()
	}
}

func (m *Metrics) IncrementPaymentsConfirmed() {
	if m != nil {
		m.PaymentsConfirmed.Inc()
	}
}

func (m *Metrics) AddBibsAssigned(n int) {
	if m != nil {
		m.BibsAssigned.Add(float64(n))
	}
}

func (m *Metrics) IncrementCASRetry(operation string) {
	if m != nil {
		m.CASRetries.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
