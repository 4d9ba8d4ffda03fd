// Package observability provides a metrics hook that records engine
// lifecycle event counts and the current health status as Prometheus
// metrics.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bitflowhq/bitflow-go/health"
	"github.com/bitflowhq/bitflow-go/hook"
	"github.com/bitflowhq/bitflow-go/stream"
	"github.com/bitflowhq/bitflow-go/subscription"
	"github.com/bitflowhq/bitflow-go/types"
)

// Ensure MetricsHook implements required interfaces.
var (
	_ hook.Hook                    = (*MetricsHook)(nil)
	_ hook.OnStreamCreated         = (*MetricsHook)(nil)
	_ hook.OnStreamCompleted       = (*MetricsHook)(nil)
	_ hook.OnStreamCancelled       = (*MetricsHook)(nil)
	_ hook.OnPaymentReceived       = (*MetricsHook)(nil)
	_ hook.OnSubscriptionCreated   = (*MetricsHook)(nil)
	_ hook.OnSubscriptionCancelled = (*MetricsHook)(nil)
	_ hook.OnSubscriptionRenewed   = (*MetricsHook)(nil)
	_ hook.OnSubscriptionExpired   = (*MetricsHook)(nil)
	_ hook.OnHealthChanged         = (*MetricsHook)(nil)
)

// MetricsHook counts engine lifecycle events.
type MetricsHook struct {
	streams       *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
	payments      prometheus.Counter
	healthStatus  prometheus.Gauge
}

// New creates a MetricsHook and registers its collectors with reg.
func New(reg prometheus.Registerer) *MetricsHook {
	m := &MetricsHook{
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitflow",
			Name:      "stream_events_total",
			Help:      "Stream lifecycle events by type.",
		}, []string{"event"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitflow",
			Name:      "subscription_events_total",
			Help:      "Subscription lifecycle events by type.",
		}, []string{"event"}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bitflow",
			Name:      "payments_received_total",
			Help:      "Completed withdrawals.",
		}),
		healthStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bitflow",
			Name:      "health_status",
			Help:      "Current aggregate health status (0 healthy, 3 emergency).",
		}),
	}

	reg.MustRegister(m.streams, m.subscriptions, m.payments, m.healthStatus)
	return m
}

// Name implements hook.Hook.
func (m *MetricsHook) Name() string { return "metrics-hook" }

// OnStreamCreated implements hook.OnStreamCreated.
func (m *MetricsHook) OnStreamCreated(context.Context, *stream.Stream) error {
	m.streams.WithLabelValues("created").Inc()
	return nil
}

// OnStreamCompleted implements hook.OnStreamCompleted.
func (m *MetricsHook) OnStreamCompleted(context.Context, *stream.Stream) error {
	m.streams.WithLabelValues("completed").Inc()
	return nil
}

// OnStreamCancelled implements hook.OnStreamCancelled.
func (m *MetricsHook) OnStreamCancelled(_ context.Context, _ *stream.Stream, _, _ types.Amount) error {
	m.streams.WithLabelValues("cancelled").Inc()
	return nil
}

// OnPaymentReceived implements hook.OnPaymentReceived.
func (m *MetricsHook) OnPaymentReceived(_ context.Context, _ *stream.Stream, _ types.Amount) error {
	m.payments.Inc()
	return nil
}

// OnSubscriptionCreated implements hook.OnSubscriptionCreated.
func (m *MetricsHook) OnSubscriptionCreated(context.Context, *subscription.Subscription) error {
	m.subscriptions.WithLabelValues("created").Inc()
	return nil
}

// OnSubscriptionCancelled implements hook.OnSubscriptionCancelled.
func (m *MetricsHook) OnSubscriptionCancelled(context.Context, *subscription.Subscription) error {
	m.subscriptions.WithLabelValues("cancelled").Inc()
	return nil
}

// OnSubscriptionRenewed implements hook.OnSubscriptionRenewed.
func (m *MetricsHook) OnSubscriptionRenewed(context.Context, *subscription.Subscription) error {
	m.subscriptions.WithLabelValues("renewed").Inc()
	return nil
}

// OnSubscriptionExpired implements hook.OnSubscriptionExpired.
func (m *MetricsHook) OnSubscriptionExpired(context.Context, *subscription.Subscription) error {
	m.subscriptions.WithLabelValues("expired").Inc()
	return nil
}

// OnHealthChanged implements hook.OnHealthChanged.
func (m *MetricsHook) OnHealthChanged(_ context.Context, _, next health.Status) error {
	m.healthStatus.Set(float64(next))
	return nil
}
