package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NotNil(t, tel.LoggerProvider())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())

	require.NoError(t, tel.Shutdown(context.Background()))
	h := tel.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, "shut down", h.Reason)
}

func TestNew_InvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true})
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_SetDegraded(t *testing.T) {
	tel := &Telemetry{health: HealthStatus{Healthy: true, Traces: true}}

	tel.setDegraded("meter provider failed: %v", "dial tcp: refused")

	h := tel.Health()
	assert.True(t, h.Healthy)
	assert.True(t, h.Degraded)
	assert.True(t, h.Traces)
	assert.Equal(t, "meter provider failed: dial tcp: refused", h.Reason)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.Shutdown(context.Background())
	})

	h := tel.Health()
	assert.False(t, h.Healthy)
	assert.True(t, h.Degraded)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	tracer := tt.Tracer("test")

	_, span := tracer.Start(context.Background(), "memory.check")
	span.SetAttributes(
		attribute.String("source", "patterns"),
		attribute.Int("results", 3),
		attribute.Float64("confidence", 0.75),
		attribute.Bool("auto_store", true),
	)
	span.End()

	_, failed := tracer.Start(context.Background(), "memory.store_incident")
	failed.RecordError(errors.New("invalid incident"))
	failed.SetStatus(codes.Error, "invalid incident")
	failed.End()

	assert.Equal(t, []string{"memory.check", "memory.store_incident"}, tt.SpanNames())
	tt.AssertSpanExists(t, "memory.check")
	tt.AssertSpanAttribute(t, "memory.check", "source", "patterns")
	tt.AssertSpanAttribute(t, "memory.check", "results", int64(3))
	tt.AssertSpanAttribute(t, "memory.check", "confidence", 0.75)
	tt.AssertSpanAttribute(t, "memory.check", "auto_store", true)
	tt.AssertSpanError(t, "memory.store_incident")
	assert.Nil(t, tt.SpanByName("missing"))
}

func TestTestTelemetry_Int64Sum(t *testing.T) {
	tt := NewTestTelemetry()
	counter, err := tt.Meter("test").Int64Counter("debugmem.search.requests_total")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "incidents")))
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("kind", "patterns")))

	assert.Equal(t, int64(3), tt.Int64Sum(t, "debugmem.search.requests_total"))
	assert.Equal(t, int64(0), tt.Int64Sum(t, "absent"))
}

func TestTestTelemetry_Health(t *testing.T) {
	tt := NewTestTelemetry()
	assert.Equal(t, HealthStatus{Healthy: true, Traces: true, Metrics: true}, tt.Health())

	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
}
