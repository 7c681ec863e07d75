// Package observability sets up the process-wide slog logger and, optionally,
// an OpenTelemetry log pipeline fed from the same records.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const scopeName = "github.com/florianilch/keyprovider"

// Log exporters understood by Instrument.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// ShutdownFunc flushes and stops the log pipeline.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger writing to stderr in the given
// format ("text" or "json"). With an exporter other than "none" every record
// is also sent through OpenTelemetry; OTLP endpoints come from the standard
// OTEL_EXPORTER_OTLP_* environment variables.
func Instrument(ctx context.Context, level slog.Level, format, exporter string) (ShutdownFunc, error) {
	return instrument(ctx, os.Stderr, level, format, exporter)
}

func instrument(ctx context.Context, w io.Writer, level slog.Level, format, exporter string) (ShutdownFunc, error) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	if exporter == "" || exporter == ExporterNone {
		slog.SetDefault(slog.New(handler))
		return func(context.Context) error { return nil }, nil
	}

	processor, err := newProcessor(ctx, w, exporter)
	if err != nil {
		return nil, err
	}
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, severity(level))),
	)
	global.SetLoggerProvider(provider)

	// Pipeline errors go to the local handler only, never back into the pipeline
	local := slog.New(handler)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		local.Warn("opentelemetry error", "error", err)
	}))

	slog.SetDefault(slog.New(slogmulti.Fanout(
		handler,
		otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(provider)),
	)))

	return provider.Shutdown, nil
}

func newProcessor(ctx context.Context, w io.Writer, exporter string) (sdklog.Processor, error) {
	switch exporter {
	case ExporterStdout:
		exp, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("creating stdout log exporter: %w", err)
		}
		// Synchronous: a CLI run may exit before a batch is flushed
		return sdklog.NewSimpleProcessor(exp), nil
	case ExporterOTLPHTTP:
		exp, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP/HTTP log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil
	case ExporterOTLPGRPC:
		exp, err := otlploggrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP/gRPC log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil
	default:
		return nil, fmt.Errorf("unsupported log exporter %q", exporter)
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
