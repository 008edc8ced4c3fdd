package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CheckoutMetrics holds Prometheus metrics for the prescription-gated checkout.
// Methods are nil-safe so components can run without metrics in tests.
type CheckoutMetrics struct {
	// Cart
	CartMutations *prometheus.CounterVec

	// Prescriptions
	DraftsBuilt   *prometheus.CounterVec
	Uploads       *prometheus.CounterVec
	UploadLatency prometheus.Histogram

	// Validation polling
	PollAttempts *prometheus.CounterVec
	PollOutcomes *prometheus.CounterVec
	PollDuration prometheus.Histogram

	// Checkout gate and purchase
	Decisions     *prometheus.CounterVec
	Purchases     *prometheus.CounterVec
	PurchaseValue prometheus.Histogram

	// Events
	EventPublishFailed *prometheus.CounterVec

	// Upstream services
	UpstreamLatency *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewCheckoutMetrics(namespace string, reg prometheus.Registerer) *CheckoutMetrics {
	if namespace == "" {
		namespace = "botica"
	}
	factory := promauto.With(reg)
	subsystem := "checkout"

	return &CheckoutMetrics{
		CartMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_mutations_total",
				Help:      "Cart mutations by operation and result",
			},
			[]string{"operation", "result"}, // operation: add, remove, clear
		),
		DraftsBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "prescription_drafts_total",
				Help:      "Prescription draft build attempts by result",
			},
			[]string{"result"}, // result: ok, invalid, conflict
		),
		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "prescription_uploads_total",
				Help:      "Prescription document uploads by result",
			},
			[]string{"result"}, // result: ok, rejected, unavailable, skipped
		),
		UploadLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "prescription_upload_duration_seconds",
				Help:      "Prescription upload latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		PollAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "validation_poll_attempts_total",
				Help:      "Validation status queries by result",
			},
			[]string{"result"}, // result: observed, failed
		),
		PollOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "validation_outcomes_total",
				Help:      "Terminal validation outcomes by status",
			},
			[]string{"status"},
		),
		PollDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "validation_poll_duration_seconds",
				Help:      "Time from first validation request to terminal outcome",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60},
			},
		),
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "decisions_total",
				Help:      "Checkout guard decisions by decision and caveat",
			},
			[]string{"decision", "caveat"},
		),
		Purchases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "purchases_total",
				Help:      "Purchase registrations by result and caveat",
			},
			[]string{"result", "caveat"},
		),
		PurchaseValue: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "purchase_value",
				Help:      "Registered purchase totals",
				Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000},
			},
		),
		EventPublishFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_publish_failures_total",
				Help:      "Checkout events that could not be published",
			},
			[]string{"event"},
		),
		UpstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Latency of calls to remote services",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation", "result"},
		),
	}
}

// CartMutation counts a cart operation.
func (m *CheckoutMetrics) CartMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(operation, result(err)).Inc()
}

// DraftBuilt counts a draft build attempt. code is "" on success.
func (m *CheckoutMetrics) DraftBuilt(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.DraftsBuilt.WithLabelValues(code).Inc()
}

// Upload records one upload attempt.
func (m *CheckoutMetrics) Upload(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.UploadLatency.Observe(seconds)
	}
}

// PollAttempt counts one status query.
func (m *CheckoutMetrics) PollAttempt(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.PollAttempts.WithLabelValues("observed").Inc()
		return
	}
	m.PollAttempts.WithLabelValues("failed").Inc()
}

// PollOutcome records a terminal poll result.
func (m *CheckoutMetrics) PollOutcome(status string, seconds float64) {
	if m == nil {
		return
	}
	m.PollOutcomes.WithLabelValues(status).Inc()
	m.PollDuration.Observe(seconds)
}

// Decision counts a guard decision.
func (m *CheckoutMetrics) Decision(decision, caveat string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision, caveat).Inc()
}

// Purchase records a registration attempt; value is only observed on success.
func (m *CheckoutMetrics) Purchase(err error, caveat string, value float64) {
	if m == nil {
		return
	}
	m.Purchases.WithLabelValues(result(err), caveat).Inc()
	if err == nil {
		m.PurchaseValue.Observe(value)
	}
}

// PublishFailed counts an event that was dropped.
func (m *CheckoutMetrics) PublishFailed(event string) {
	if m == nil {
		return
	}
	m.EventPublishFailed.WithLabelValues(event).Inc()
}

// Upstream observes one call to a remote service.
func (m *CheckoutMetrics) Upstream(service, operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(service, operation, result(err)).Observe(seconds)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
