package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

const meterName = "github.com/fyrsmithlabs/debugmem/internal/http"

// RequestMetrics records OTEL metrics for API requests. Every instrument is
// labeled by route template, method, status and whether the caller sent a
// valid X-Agent header, so cardinality is bounded by the route table.
type RequestMetrics struct {
	requests  metric.Int64Counter
	latency   metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	throttled metric.Int64Counter
}

// NewRequestMetrics creates the instruments on tel's meter, or on the
// global meter provider when tel is nil. Instruments that fail to register
// are logged and skipped.
func NewRequestMetrics(tel *telemetry.Telemetry, logger *zap.Logger) *RequestMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(meterName)
	if tel != nil {
		meter = tel.Meter(meterName)
	}
	return newRequestMetrics(meter, logger)
}

func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *RequestMetrics {
	var (
		m    RequestMetrics
		errs []error
		err  error
	)
	m.requests, err = meter.Int64Counter("debugmem.http.requests",
		metric.WithDescription("API requests served."),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	m.latency, err = meter.Float64Histogram("debugmem.http.request.duration",
		metric.WithDescription("Time to serve an API request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	errs = append(errs, err)

	m.inFlight, err = meter.Int64UpDownCounter("debugmem.http.requests.in_flight",
		metric.WithDescription("API requests currently being served."),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	m.throttled, err = meter.Int64Counter("debugmem.http.requests.throttled",
		metric.WithDescription("API requests rejected by the rate limiter."),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		logger.Warn("some http instruments are unavailable", zap.Error(err))
	}
	return &m
}

// Middleware records one request. It must run outside the rate limiter so
// throttled requests are counted.
func (m *RequestMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			status := statusOf(c, err)
			attrs := metric.WithAttributes(
				attribute.String("route", routeOf(c)),
				attribute.String("method", c.Request().Method),
				attribute.Int("status", status),
				attribute.Bool("agent", logging.AgentFromContext(c.Request().Context()) != ""),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if status == http.StatusTooManyRequests && m.throttled != nil {
				m.throttled.Add(ctx, 1, attrs)
			}
			return err
		}
	}
}

// statusOf is the status the error handler will write for err.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return statusFor(err)
}

// routeOf is the matched route template; unmatched requests share "unmatched".
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
