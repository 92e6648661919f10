// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls the exporter
type Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	// OutputFile receives spans as JSON; empty means stdout
	OutputFile string `mapstructure:"output_file"`
}

// ShutdownFunc flushes and stops the provider
type ShutdownFunc func(ctx context.Context) error

var (
	providerOnce sync.Once
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// Init installs a global provider backed by the stdout exporter. With tracing
// disabled the global no-op provider stays in place. The first call wins.
func Init(cfg Config) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	var w io.Writer = os.Stdout
	var file *os.File
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return noop, err
		}
		w, file = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return noop, err
	}
	tp, err := install(cfg, exporter)
	if err != nil {
		return noop, err
	}

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			file.Close()
		}
		return err
	}, nil
}

// InitWithExporter installs a provider using exporter, for tests and other backends
func InitWithExporter(cfg Config, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	return install(cfg, exporter)
}

func install(cfg Config, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	providerOnce.Do(func() {
		name := cfg.ServiceName
		if name == "" {
			name = "docflow"
		}
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", name),
				attribute.String("service.version", cfg.ServiceVersion),
			),
		)
		if err != nil {
			providerErr = err
			return
		}

		provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
	})
	return provider, providerErr
}
