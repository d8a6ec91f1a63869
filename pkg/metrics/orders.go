package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records checkout and reconciliation outcomes.
type OrderMetrics struct {
	ordersCreated    prometheus.Counter
	checkoutFailures *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders successfully created by checkout.",
	})
	checkoutFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failures_total",
		Help: "Checkout attempts that aborted, by reason.",
	}, []string{"reason"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment gateway webhook deliveries, by gateway and result.",
	}, []string{"gateway", "result"})
	reg.MustRegister(ordersCreated, checkoutFailures, webhookEvents)
	return &OrderMetrics{
		ordersCreated:    ordersCreated,
		checkoutFailures: checkoutFailures,
		webhookEvents:    webhookEvents,
	}
}

// IncOrderCreated increments the successful checkout counter.
func (m *OrderMetrics) IncOrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

// IncCheckoutFailure increments the failure counter for the given reason.
func (m *OrderMetrics) IncCheckoutFailure(reason string) {
	if m == nil || m.checkoutFailures == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.checkoutFailures.WithLabelValues(reason).Inc()
}

// IncWebhookEvent increments the webhook counter for the gateway/result pair.
func (m *OrderMetrics) IncWebhookEvent(gateway, result string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	if gateway == "" {
		gateway = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	m.webhookEvents.WithLabelValues(gateway, result).Inc()
}
