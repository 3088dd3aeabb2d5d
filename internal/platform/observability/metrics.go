package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/brightcart/api"

// Metrics holds the instruments recorded by the API. The zero value and nil receiver are no-ops.
type Metrics struct {
	verifications metric.Int64Counter
	orders        metric.Int64Counter
	authChecks    metric.Int64Counter
	authLatency   metric.Float64Histogram
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider registers instruments on provider.
func NewMetricsWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	verifications, err := meter.Int64Counter("checkout.verifications",
		metric.WithDescription("Payment verification attempts by outcome"))
	if err != nil {
		return nil, err
	}
	orders, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted after payment verification"))
	if err != nil {
		return nil, err
	}
	authChecks, err := meter.Int64Counter("auth.verifications",
		metric.WithDescription("Service token verifications by outcome"))
	if err != nil {
		return nil, err
	}
	authLatency, err := meter.Float64Histogram("auth.verification.duration",
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		verifications: verifications,
		orders:        orders,
		authChecks:    authChecks,
		authLatency:   authLatency,
	}, nil
}

// RecordVerificationOutcome counts one payment verification, tagged with gateway and outcome.
func (m *Metrics) RecordVerificationOutcome(ctx context.Context, gateway, outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("outcome", outcome),
	))
}

// RecordOrderCreated counts a persisted order.
func (m *Metrics) RecordOrderCreated(ctx context.Context, gateway string) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("gateway", gateway)))
}

// RecordVerification satisfies auth.MetricsRecorder for OIDC checks on internal routes.
func (m *Metrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil || m.authChecks == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.authChecks.Add(ctx, 1, attrs)
	m.authLatency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}
