package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the authorization decision metrics as OpenTelemetry
// instruments, so deployments exporting over OTLP see the same signal as the
// Prometheus scrape
type OTelMetrics struct {
	decisions   metric.Int64Counter
	riskScore   metric.Int64Histogram
	ruleExpired metric.Int64Counter
}

// NewOTelMetrics creates the instruments on the given provider, usually
// otel.GetMeterProvider()
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	meter := provider.Meter(TracerName)

	m := &OTelMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter(
		"tenantguard.authz.decisions",
		metric.WithDescription("Authorization decisions by kind and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.riskScore, err = meter.Int64Histogram(
		"tenantguard.security.risk_score",
		metric.WithDescription("Computed session risk score"),
		metric.WithExplicitBucketBoundaries(0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create risk score histogram: %w", err)
	}

	m.ruleExpired, err = meter.Int64Counter(
		"tenantguard.crosstenant.rules_expired",
		metric.WithDescription("Cross-tenant rules deactivated after expiry"),
		metric.WithUnit("{rule}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rules expired counter: %w", err)
	}

	return m, nil
}

// RecordDecision counts one authorization decision. kind is one of
// "crosstenant", "mfa" or "privacy".
func (m *OTelMetrics) RecordDecision(ctx context.Context, kind string, allowed bool) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("allowed", allowed),
	))
}

// RecordRiskScore records a computed risk score
func (m *OTelMetrics) RecordRiskScore(ctx context.Context, score int) {
	if m == nil {
		return
	}
	m.riskScore.Record(ctx, int64(score))
}

// RecordRulesExpired counts rules deactivated by an expiry sweep
func (m *OTelMetrics) RecordRulesExpired(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.ruleExpired.Add(ctx, n)
}
