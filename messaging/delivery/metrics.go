package delivery

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// channelMetrics instruments the delivery loop. Exported through the
// global meter provider, which the observability setup backs with the
// Prometheus exporter.
type channelMetrics struct {
	activeSubscriptions metric.Int64UpDownCounter
	pollTicks           metric.Int64Counter
	deliveredEvents     metric.Int64Counter
	pollErrors          metric.Int64Counter
}

func newChannelMetrics() *channelMetrics {
	meter := otel.Meter("whatsmoney/backend/messaging/delivery")

	active, _ := meter.Int64UpDownCounter("chat_delivery_active_subscriptions",
		metric.WithDescription("Number of live delivery subscriptions"))
	ticks, _ := meter.Int64Counter("chat_delivery_poll_ticks_total",
		metric.WithDescription("Poll ticks executed across all subscriptions"))
	delivered, _ := meter.Int64Counter("chat_delivery_events_total",
		metric.WithDescription("Message events delivered to subscribers"))
	errs, _ := meter.Int64Counter("chat_delivery_poll_errors_total",
		metric.WithDescription("Poll queries that failed and were retried on the next tick"))

	return &channelMetrics{
		activeSubscriptions: active,
		pollTicks:           ticks,
		deliveredEvents:     delivered,
		pollErrors:          errs,
	}
}

func (m *channelMetrics) subscriptionStarted(ctx context.Context) {
	m.activeSubscriptions.Add(ctx, 1)
}

func (m *channelMetrics) subscriptionEnded(ctx context.Context) {
	m.activeSubscriptions.Add(ctx, -1)
}

func (m *channelMetrics) tick(ctx context.Context) {
	m.pollTicks.Add(ctx, 1)
}

func (m *channelMetrics) delivered(ctx context.Context, n int64) {
	m.deliveredEvents.Add(ctx, n)
}

func (m *channelMetrics) pollError(ctx context.Context) {
	m.pollErrors.Add(ctx, 1)
}
