package cmd

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/stepflow/pkg/otelhelper"
)

// NewTracer installs the OTLP exporter when enabled. The returned shutdown
// func is always safe to call.
func NewTracer(ctx context.Context, logger *slog.Logger, enabled bool, serviceName string) (trace.Tracer, func(context.Context) error) {
	if !enabled {
		return otelhelper.Tracer(serviceName), func(context.Context) error { return nil }
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled, exporter setup failed", "error", err)

		return otelhelper.Tracer(serviceName), func(context.Context) error { return nil }
	}

	return tracer, shutdown
}
