package instrumentation

import (
	"context"
	"testing"
	"time"
)

func testConfig(metricsExporter, tracingExporter string) Config {
	return Config{
		ServiceName:     "workspace-agent-test",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: metricsExporter,
		TracingExporter: tracingExporter,
	}
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, testConfig(ExporterPrometheus, ExporterNone))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.ServesPrometheus() {
		t.Error("disabled provider should not serve prometheus")
	}
	if provider.Metrics() == nil {
		t.Fatal("Metrics() should never be nil")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected a no-op tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on disabled provider returned %v", err)
	}

	// Recording on a disabled provider is a no-op.
	provider.Metrics().RecordSlotSearch(context.Background(), "http", StatusSuccess, 3)
}

func TestNewProvider_Prometheus(t *testing.T) {
	provider := newTestProvider(t)

	if !provider.Enabled() {
		t.Error("expected provider to be enabled")
	}
	if !provider.ServesPrometheus() {
		t.Error("expected prometheus exporter to be active")
	}
}

func TestNewProvider_Stdout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, testConfig(ExporterStdout, ExporterStdout))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	if provider.ServesPrometheus() {
		t.Error("stdout exporter should not serve prometheus")
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"invalid metrics exporter", testConfig("invalid", ExporterNone)},
		{"invalid tracing exporter", testConfig(ExporterPrometheus, "invalid")},
		{"otlp tracing without endpoint", testConfig(ExporterPrometheus, ExporterOTLP)},
		{"otlp metrics without endpoint", testConfig(ExporterOTLP, ExporterNone)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := NewProvider(ctx, tt.config); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestProvider_Tracer(t *testing.T) {
	provider := newTestProvider(t)

	_, span := provider.Tracer(TracerName).Start(context.Background(), "test")
	defer span.End()

	// Traces are not sampled with the "none" exporter.
	if span.SpanContext().IsSampled() {
		t.Error("expected span not to be sampled")
	}
}
