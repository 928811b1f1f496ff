// Package telemetry wires OpenTelemetry tracing.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const ServiceName = "zako_server"

// Tracer returns the tracer services open their spans with. It follows the
// global provider, so it is a no-op until Setup installs a real one.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// Provider owns the installed tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
}

// Setup installs a stdout exporting provider when enabled. A disabled setup
// leaves the global no-op provider in place.
func Setup(enabled bool, w io.Writer) (*Provider, error) {
	if !enabled {
		return &Provider{}, nil
	}
	opts := []stdouttrace.Option{}
	if w != nil {
		opts = append(opts, stdouttrace.WithWriter(w))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", ServiceName))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	return &Provider{provider: provider}, nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
