package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/store"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/debugmem/internal/mcp"

// Metrics holds the MCP tool instruments.
type Metrics struct {
	invocations    metric.Int64Counter
	duration       metric.Float64Histogram
	errors         metric.Int64Counter
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on tel's meter, or on the global meter
// provider when tel is nil. Instruments that fail to register are logged and
// skipped.
func NewMetrics(tel *telemetry.Telemetry, logger *zap.Logger) *Metrics {
	meter := otel.Meter(instrumentationName)
	if tel != nil {
		meter = tel.Meter(instrumentationName)
	}

	var (
		m    Metrics
		errs []error
		err  error
	)
	m.invocations, err = meter.Int64Counter("debugmem.mcp.tool.invocations",
		metric.WithDescription("MCP tool invocations."),
		metric.WithUnit("{invocation}"))
	errs = append(errs, err)

	m.duration, err = meter.Float64Histogram("debugmem.mcp.tool.duration",
		metric.WithDescription("Duration of MCP tool invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0))
	errs = append(errs, err)

	m.errors, err = meter.Int64Counter("debugmem.mcp.tool.errors",
		metric.WithDescription("MCP tool invocations that failed, by reason."),
		metric.WithUnit("{error}"))
	errs = append(errs, err)

	m.activeRequests, err = meter.Int64UpDownCounter("debugmem.mcp.tool.active",
		metric.WithDescription("MCP tool invocations in progress."),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		logger.Warn("some mcp instruments are unavailable", zap.Error(err))
	}
	return &m
}

// RecordInvocation records a finished tool invocation.
func (m *Metrics) RecordInvocation(ctx context.Context, toolName string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("tool", toolName))
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("reason", categorizeError(err))))
	}
}

// IncrementActive increments the active requests counter.
func (m *Metrics) IncrementActive(ctx context.Context, toolName string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", toolName)))
	}
}

// DecrementActive decrements the active requests counter.
func (m *Metrics) DecrementActive(ctx context.Context, toolName string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", toolName)))
	}
}

// categorizeError maps an error onto a bounded reason label.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errInvalidArgument),
		errors.Is(err, incident.ErrInvalidIncident),
		errors.Is(err, incident.ErrInvalidID):
		return "validation_error"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, memory.ErrServiceClosed):
		return "unavailable"
	default:
		return "internal_error"
	}
}
