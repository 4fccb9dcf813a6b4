package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WizardTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monarch_wizard_transitions_total",
		Help: "Wizard step transitions by flow, step and outcome.",
	},
		[]string{"flow", "step", "outcome"},
	)

	AdapterFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monarch_adapter_failures_total",
		Help: "Failed calls to external collaborators.",
	},
		[]string{"adapter"},
	)

	AdapterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monarch_adapter_duration_seconds",
		Help:    "Latency of calls to external collaborators.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"adapter"},
	)

	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monarch_checkout_sessions_total",
		Help: "Payment sessions created, by flow.",
	},
		[]string{"flow"},
	)

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monarch_notifications_total",
		Help: "Best-effort notifications by outcome.",
	},
		[]string{"outcome"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monarch_webhook_events_total",
		Help: "Payment webhook events by outcome.",
	},
		[]string{"outcome"},
	)

	WizardSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monarch_wizard_sessions",
		Help: "Wizard sessions currently held in memory.",
	})
)

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveAdapter records one adapter call; a non-nil err also counts as a failure.
func ObserveAdapter(adapter string, t *Timer, err error) {
	AdapterDuration.WithLabelValues(adapter).Observe(t.Duration().Seconds())
	if err != nil {
		AdapterFailuresTotal.WithLabelValues(adapter).Inc()
	}
}
