package tracer

import (
	"context"

	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	tracerModule = "Tracer"
	serviceName  = "discussion-companion-backend"
)

// InitTracer installs an OTLP HTTP exporter when tracing is enabled. The
// returned function flushes and stops it, and is a no-op otherwise.
func InitTracer(app config.AppConfig, log logger.ILogger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !app.OtelEnabled {
		log.Info(tracerModule, "Tracing disabled", map[string]interface{}{"hint": "set OTEL_ENABLED=true"})
		return noop
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(app.OtelEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn(tracerModule, "Failed to create OTLP exporter, tracing disabled", map[string]interface{}{"error": err.Error()})
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(app.Environment),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Info(tracerModule, "Tracer initialized", map[string]interface{}{"endpoint": app.OtelEndpoint})

	return tp.Shutdown
}
