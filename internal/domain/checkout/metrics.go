package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/xenking/marketplace-checkout/checkout"

// Metrics holds the checkout instruments.
type Metrics struct {
	ordersSubmitted  metric.Int64Counter
	promoValidations metric.Int64Counter
	discountAmount   metric.Float64Histogram
}

// NewMetrics registers the checkout instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	ordersSubmitted, err := meter.Int64Counter("checkout.orders.submitted",
		metric.WithDescription("Orders submitted, by payment method and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	promoValidations, err := meter.Int64Counter("checkout.promo.validations",
		metric.WithDescription("Promo code validations, by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "promo counter")
	}
	discountAmount, err := meter.Float64Histogram("checkout.discount.amount",
		metric.WithUnit("{VND}"),
		metric.WithDescription("Aggregated discount of submitted orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "discount histogram")
	}

	return &Metrics{
		ordersSubmitted:  ordersSubmitted,
		promoValidations: promoValidations,
		discountAmount:   discountAmount,
	}, nil
}

func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) orderSubmitted(ctx context.Context, method PaymentMethod, outcome string, discount decimal.Decimal) {
	m.ordersSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(method)),
		attribute.String("outcome", outcome),
	))
	m.discountAmount.Record(ctx, discount.InexactFloat64())
}

func (m *Metrics) promoValidated(ctx context.Context, outcome string) {
	m.promoValidations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
