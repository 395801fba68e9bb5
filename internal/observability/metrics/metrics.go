package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking and payment
// reconciliation flows. All observe methods are nil-safe so callers can
// run without a registry in tests.
type BookingMetrics struct {
	checkoutTotal  *prometheus.CounterVec
	reconcileTotal *prometheus.CounterVec
	lockTotal      *prometheus.CounterVec
	joinTotal      *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		checkoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caredial",
			Subsystem: "booking",
			Name:      "checkout_total",
			Help:      "Total checkout initiations",
		}, []string{"status"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caredial",
			Subsystem: "booking",
			Name:      "reconcile_total",
			Help:      "Total payment reconciliations by outcome",
		}, []string{"outcome"}),
		lockTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caredial",
			Subsystem: "booking",
			Name:      "slot_lock_total",
			Help:      "Total slot lock acquire attempts by result",
		}, []string{"result"}),
		joinTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caredial",
			Subsystem: "video",
			Name:      "join_total",
			Help:      "Total video join attempts",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caredial",
			Subsystem: "booking",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of payment webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checkoutTotal, m.reconcileTotal, m.lockTotal, m.joinTotal, m.webhookLatency)
	return m
}

func (m *BookingMetrics) ObserveCheckout(status string) {
	if m == nil {
		return
	}
	m.checkoutTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveLock(result string) {
	if m == nil {
		return
	}
	m.lockTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveJoin(status string) {
	if m == nil {
		return
	}
	m.joinTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveWebhookLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(outcome).Observe(seconds)
}
