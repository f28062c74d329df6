// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/stacklok/mcp-linkedin/pkg/telemetry"

// Metrics holds the service's counters. A nil *Metrics records nothing.
type Metrics struct {
	tokensIssued      metric.Int64Counter
	tokenReuse        metric.Int64Counter
	artifactsStored   metric.Int64Counter
	upstreamRefreshes metric.Int64Counter
}

// NewMetrics registers the counters on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	// The Prometheus exporter appends the _total suffix.
	tokensIssued, err := meter.Int64Counter(
		"mcp_linkedin_tokens_issued",
		metric.WithDescription("Access tokens issued, by grant type"),
	)
	if err != nil {
		return nil, err
	}
	tokenReuse, err := meter.Int64Counter(
		"mcp_linkedin_token_reuse_detected",
		metric.WithDescription("Replayed authorization codes or refresh tokens"),
	)
	if err != nil {
		return nil, err
	}
	artifactsStored, err := meter.Int64Counter(
		"mcp_linkedin_artifacts_stored",
		metric.WithDescription("Artifacts written, by backend"),
	)
	if err != nil {
		return nil, err
	}
	upstreamRefreshes, err := meter.Int64Counter(
		"mcp_linkedin_upstream_refreshes",
		metric.WithDescription("Upstream token refresh attempts, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tokensIssued:      tokensIssued,
		tokenReuse:        tokenReuse,
		artifactsStored:   artifactsStored,
		upstreamRefreshes: upstreamRefreshes,
	}, nil
}

// TokenIssued counts a minted access token.
func (m *Metrics) TokenIssued(ctx context.Context, grantType string) {
	if m == nil {
		return
	}
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("grant_type", grantType)))
}

// TokenReuseDetected counts a replay that revoked a token family.
func (m *Metrics) TokenReuseDetected(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.tokenReuse.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ArtifactStored counts a confirmed artifact write.
func (m *Metrics) ArtifactStored(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.artifactsStored.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// UpstreamRefreshed counts an upstream refresh with its outcome
// ("success" or "failure").
func (m *Metrics) UpstreamRefreshed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.upstreamRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
