package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	mp := otel.GetMeterProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	tel, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{Enabled: true}

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledWithExporter(t *testing.T) {
	restoreGlobals(t)

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics.Enabled = false
	exp := tracetest.NewInMemoryExporter()

	ctx := context.Background()
	tel, err := New(ctx, cfg, WithTraceExporter(exp))
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())
	assert.False(t, tel.Health().Degraded)

	_, span := tel.Tracer("repoctx/test").Start(ctx, "unit")
	span.End()
	require.NoError(t, tel.ForceFlush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unit", spans[0].Name)
	name, ok := spans[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "repoctx", name.AsString())

	require.NoError(t, tel.Shutdown(ctx))
	assert.False(t, tel.IsEnabled())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_Shutdown(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = 100 * time.Millisecond

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
	assert.False(t, tel.Health().Healthy)
}

func TestTelemetry_SetDegraded(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	tel.setDegraded("exporter failed: %v", "boom")
	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.Equal(t, "exporter failed: boom", h.Reason)
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "op")
	span.SetAttributes(attribute.Int64("files", 3), attribute.String("repo", "octo/widgets"))
	span.End()

	tt.AssertSpanExists(t, "op")
	tt.AssertSpanAttribute(t, "op", "files", int64(3))
	tt.AssertSpanAttribute(t, "op", "repo", "octo/widgets")
	assert.Nil(t, tt.SpanByName("missing"))

	counter, err := tt.Meter("test").Int64Counter("repoctx.test.count")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	assert.True(t, HasMetric(rm, "repoctx.test.count"))
	assert.False(t, HasMetric(rm, "other"))
	assert.Equal(t, []string{"repoctx.test.count"}, MetricNames(rm))
}

func TestTestTelemetry_SpanCounts(t *testing.T) {
	tt := NewTestTelemetry()
	tracer := tt.Tracer("test")
	for i := 0; i < 3; i++ {
		_, span := tracer.Start(context.Background(), "scheduler.batch")
		span.End()
	}

	tt.AssertSpanCount(t, "scheduler.batch", 3)
	tt.AssertSpanCount(t, "pipeline.run", 0)
	assert.Len(t, tt.SpansNamed("scheduler.batch"), 3)
}
