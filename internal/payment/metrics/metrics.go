package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts gateway callbacks. Nil-safe.
type Metrics struct {
	CallbackOutcome   *prometheus.CounterVec
	InvalidSignatures prometheus.Counter
	Replays           prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		CallbackOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "racereg_payment_callbacks_total",
			Help: "Gateway callbacks by channel and outcome",
		}, []string{"channel", "outcome"}), // channel: return, ipn

		InvalidSignatures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_payment_invalid_signatures_total",
			Help: "Gateway callbacks rejected for a bad signature",
		}),

		Replays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_payment_callback_replays_total",
			Help: "Settled callbacks seen again and short-circuited",
		}),
	}
}

func (m *Metrics) IncrementOutcome(channel, outcome string) {
	if m != nil {
		m.CallbackOutcome.WithLabelValues(channel, outcome).Inc()
	}
}

func (m *Metrics) IncrementInvalidSignature() {
	if m != nil {
		m.InvalidSignatures.Inc()
	}
}

func (m *Metrics) IncrementReplay() {
	if m != nil {
		m.Replays.Inc()
	}
}
