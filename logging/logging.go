// Package logging configures slog and, when an OTLP endpoint is configured,
// OpenTelemetry log and trace export.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/glassechidna/lambdalogs/config"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Telemetry owns the OpenTelemetry providers. A nil *Telemetry is valid and
// does nothing.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
}

// Setup installs the default slog logger. Without an OTLP endpoint it logs
// JSON to stdout and returns a nil Telemetry.
func Setup(ctx context.Context, cfg config.Config) (*Telemetry, error) {
	level := ParseLevel(cfg.LogLevel)

	if !cfg.OTel.Enabled() {
		slog.SetDefault(NewLogger(os.Stdout, level))
		return nil, nil
	}

	t, err := setupOTel(ctx, cfg.OTel)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(otelslog.NewHandler(
		cfg.OTel.ServiceName,
		otelslog.WithLoggerProvider(global.GetLoggerProvider()),
	)))
	return t, nil
}

// NewLogger returns a JSON logger writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
// Anything else is LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupOTel(ctx context.Context, cfg config.OTelConfig) (*Telemetry, error) {
	headers := parseHeaders(cfg.Headers)

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating resource")
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint+"/v1/traces"),
		otlptracehttp.WithHeaders(headers),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating trace exporter")
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(cfg.Endpoint+"/v1/logs"),
		otlploghttp.WithHeaders(headers),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating log exporter")
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)

	return &Telemetry{tracerProvider: tracerProvider, loggerProvider: loggerProvider}, nil
}

// Flush exports everything buffered so far. Lambda may freeze the process
// as soon as the handler returns, so this runs at the end of each invocation.
func (t *Telemetry) Flush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.tracerProvider.ForceFlush(ctx); err != nil {
		return errors.Wrap(err, "flushing traces")
	}
	if err := t.loggerProvider.ForceFlush(ctx); err != nil {
		return errors.Wrap(err, "flushing logs")
	}
	return nil
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "tracer shutdown")
	}
	if err := t.loggerProvider.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "logger shutdown")
	}
	return nil
}

func parseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	if s == "" {
		return headers
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			headers[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return headers
}
