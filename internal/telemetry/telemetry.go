// Package telemetry wires a minimal OpenTelemetry tracer provider for the
// orchestration core: spans are opened around the planner call, each
// task-runner attempt, and each Orchestrator Execute call; the
// approval-gate callbacks get no span of their own. Grounded on
// basegraphhq-basegraph's relay/common/otel/otel.go (resource merge,
// WithBatcher tracer provider, Shutdown) and itsneelabh-gomind's
// telemetry/otel.go (service-name-keyed provider construction). This
// module exports to stdout rather than OTLP/HTTP so the demo binary has
// no network dependency; swapping the exporter is a one-function change.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the process-wide tracer provider this module installs.
// Ambient observability only — spans are emitted around oracle
// round-trips, nothing here performs distributed coordination, so it does
// not conflict with this core's Non-goals.
type Telemetry struct {
	provider *sdktrace.TracerProvider
}

// Setup builds a tracer provider for serviceName and installs it as the
// global provider. Pass prettyPrint=true for human-readable stdout spans
// during local development.
func Setup(ctx context.Context, serviceName, serviceVersion string, prettyPrint bool) (*Telemetry, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating resource: %w", err)
	}

	var opts []stdouttrace.Option
	if prettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Telemetry{provider: provider}, nil
}

// Shutdown flushes and releases the tracer provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Tracer returns the named tracer the Orchestrator, Planner, and Task
// Runner use to open their spans.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
