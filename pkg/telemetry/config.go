// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry metrics and tracing for the server:
// a Prometheus scrape endpoint, optional OTLP export and the service's own
// counters.
package telemetry

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry/providers/otlp"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry/providers/prometheus"
)

// Config holds the telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP collector. Empty disables OTLP export.
	Endpoint string
	Headers  map[string]string
	Insecure bool

	// TracingEnabled and MetricsEnabled gate OTLP export only.
	TracingEnabled bool
	MetricsEnabled bool
	SamplingRate   float64

	// EnablePrometheusMetricsPath serves /metrics on the main listener.
	EnablePrometheusMetricsPath bool
	IncludeRuntimeMetrics       bool
}

// DefaultConfig serves Prometheus metrics and exports nothing over OTLP.
func DefaultConfig() Config {
	return Config{
		ServiceName:                 "mcp-linkedin",
		ServiceVersion:              "dev",
		TracingEnabled:              true,
		MetricsEnabled:              true,
		SamplingRate:                0.05,
		EnablePrometheusMetricsPath: true,
		IncludeRuntimeMetrics:       true,
	}
}

// Provider owns the meter and tracer providers and their shutdown.
type Provider struct {
	meterProvider     metric.MeterProvider
	tracerProvider    trace.TracerProvider
	prometheusHandler http.Handler
	shutdownFuncs     []func(context.Context) error
}

// NewProvider builds providers for cfg. With nothing enabled it returns
// no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	otlpMetrics := cfg.Endpoint != "" && cfg.MetricsEnabled
	otlpTracing := cfg.Endpoint != "" && cfg.TracingEnabled
	if !cfg.EnablePrometheusMetricsPath && !otlpMetrics && !otlpTracing {
		logger.Infof("No telemetry configured, using no-op providers")
		return p, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry resource: %w", err)
	}

	otlpCfg := otlp.Config{
		Endpoint:     cfg.Endpoint,
		Headers:      cfg.Headers,
		Insecure:     cfg.Insecure,
		SamplingRate: cfg.SamplingRate,
	}

	var readers []sdkmetric.Option
	if cfg.EnablePrometheusMetricsPath {
		reader, handler, err := prometheus.NewReader(prometheus.Config{
			EnableMetricsPath:     true,
			IncludeRuntimeMetrics: cfg.IncludeRuntimeMetrics,
		})
		if err != nil {
			return nil, err
		}
		readers = append(readers, sdkmetric.WithReader(reader))
		p.prometheusHandler = handler
	}
	if otlpMetrics {
		reader, err := otlp.NewMetricReader(ctx, otlpCfg)
		if err != nil {
			return nil, err
		}
		readers = append(readers, sdkmetric.WithReader(reader))
	}
	if len(readers) > 0 {
		mp := sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...)
		p.meterProvider = mp
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
	}

	if otlpTracing {
		tp, err := otlp.NewTracerProvider(ctx, otlpCfg, res)
		if err != nil {
			return nil, err
		}
		p.tracerProvider = tp
		p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	}

	logger.Infow("telemetry providers created",
		"prometheus", cfg.EnablePrometheusMetricsPath,
		"otlp_metrics", otlpMetrics,
		"otlp_tracing", otlpTracing,
	)
	return p, nil
}

// MeterProvider returns the meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider { return p.meterProvider }

// TracerProvider returns the tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider { return p.tracerProvider }

// PrometheusHandler returns the /metrics handler, or nil when disabled.
func (p *Provider) PrometheusHandler() http.Handler { return p.prometheusHandler }

// Shutdown flushes and stops every provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	for _, shutdown := range p.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
