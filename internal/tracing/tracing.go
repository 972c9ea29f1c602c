// Package tracing wires the node's OpenTelemetry tracer provider
// (SPEC_FULL.md §C9 ADDED): an OTLP-HTTP exporter when a collector
// endpoint is configured, a no-op provider otherwise. No retrieved
// example repo instantiates the otel SDK directly (the dependency
// appears only in flemzord-sclaw's go.mod), so construction follows the
// libraries' own documented top-level API rather than a pack file.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the tracer provider.
type Config struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"` // OTLP/HTTP collector host:port, e.g. "localhost:4318"
	Insecure bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c *Config) defaults() {
	if c.SampleRatio <= 0 {
		c.SampleRatio = 1.0
	}
}

// Provider wraps the configured trace.TracerProvider plus a shutdown hook.
// Callers that never configure an endpoint get otel's global no-op
// provider and a Shutdown that is always safe to call.
type Provider struct {
	tp       *sdktrace.TracerProvider // nil when tracing is disabled
	tracer   trace.Tracer
}

// New builds a Provider per cfg. Disabled/unconfigured returns a provider
// backed by the otel/trace/noop package (the same no-op construction the
// yduwcui-ai-gateway example's internal/tracing/tracer.go checks for via
// a noop.Tracer type assertion), matching the teacher's nopHandler
// zero-cost-discard pattern in internal/provider/chain.go generalized
// from "no-op LLM provider" to "no-op tracer".
func New(ctx context.Context, cfg Config, serviceName string) (*Provider, error) {
	cfg.defaults()
	if !cfg.Enabled || cfg.Endpoint == "" {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: build otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer(serviceName)}, nil
}

// Tracer returns the tracer every instrumented call site should use to
// start spans.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and stops the exporter. Safe to call on a no-op
// (unconfigured) provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

const shutdownGrace = 5 * time.Second
