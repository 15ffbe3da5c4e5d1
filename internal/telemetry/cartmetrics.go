package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// CartMetrics records cart activity from the cart event stream. It is a
// cart.Notifier.
type CartMetrics struct {
	events    metric.Int64Counter
	checkouts metric.Int64Counter
	value     metric.Float64Histogram
}

func NewCartMetrics(mp metric.MeterProvider) (*CartMetrics, error) {
	meter := mp.Meter("storefront/cart")

	events, err := meter.Int64Counter("storefront.cart.events",
		metric.WithDescription("Committed cart and checkout changes by event name."),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}

	checkouts, err := meter.Int64Counter("storefront.checkout.outcomes",
		metric.WithDescription("Orders placed, by payment method and outcome."),
		metric.WithUnit("{order}"))
	if err != nil {
		return nil, fmt.Errorf("create checkout counter: %w", err)
	}

	value, err := meter.Float64Histogram("storefront.checkout.value",
		metric.WithDescription("Payable total of placed orders."),
		metric.WithExplicitBucketBoundaries(50, 100, 250, 500, 1000, 2500, 5000, 10000))
	if err != nil {
		return nil, fmt.Errorf("create value histogram: %w", err)
	}

	return &CartMetrics{events: events, checkouts: checkouts, value: value}, nil
}

func (m *CartMetrics) Notify(ctx context.Context, ev domain.CartEvent) error {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(ev.Name))))

	var outcome string
	switch ev.Name {
	case domain.EventPurchase:
		outcome = "completed"
	case domain.EventPaymentRedirected:
		outcome = "redirected"
	default:
		return nil
	}

	attrs := metric.WithAttributes(
		attribute.String("payment_method", string(ev.Payment)),
		attribute.String("outcome", outcome),
	)
	m.checkouts.Add(ctx, 1, attrs)
	m.value.Record(ctx, ev.Value.InexactFloat64(), attrs)
	return nil
}
