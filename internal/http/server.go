// Package http exposes the memory service over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

// HeaderAgent names the calling agent; it is attached to the request
// context and appears in logs as "agent".
const HeaderAgent = "X-Agent"

// maxBodySize bounds request bodies.
const maxBodySize = "2M"

// Server provides HTTP endpoints for debugmem.
type Server struct {
	echo    *echo.Echo
	svc     memory.Service
	logger  *zap.Logger
	config  *Config
	version string
	tel     *telemetry.Telemetry
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second allowed per client,
	// identified by X-Agent or else by IP. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	version  string
	tel      *telemetry.Telemetry
	metrics  *RequestMetrics
	gatherer prometheus.Gatherer
}

// WithVersion sets the version reported by /api/v1/status.
func WithVersion(v string) Option {
	return func(o *serverOptions) { o.version = v }
}

// WithTelemetry reports exporter health in /api/v1/status.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *serverOptions) { o.tel = tel }
}

// WithMetrics records OTEL request metrics.
func WithMetrics(m *RequestMetrics) Option {
	return func(o *serverOptions) { o.metrics = m }
}

// WithGatherer serves g on /metrics. Without it /metrics is not registered.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *serverOptions) { o.gatherer = g }
}

// NewServer creates a new HTTP server.
func NewServer(svc memory.Service, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("memory service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9191,
		}
	}
	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(requestContext)
	if o.metrics != nil {
		e.Use(o.metrics.Middleware())
	}
	if cfg.RateLimit > 0 {
		e.Use(rateLimiter(cfg))
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.String("agent", logging.AgentFromContext(c.Request().Context())),
			)
			return nil
		}
	})

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		version: o.version,
		tel:     o.tel,
	}
	s.registerRoutes(o.gatherer)
	return s, nil
}

// requestContext copies the request id and agent header into the request
// context so service logs correlate with the access log. Malformed values
// are dropped.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		ctx = logging.WithAgent(ctx, req.Header.Get(HeaderAgent))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

// rateLimiter limits each client with a token bucket. Health checks and
// metrics scrapes are exempt.
func rateLimiter(cfg *Config) echo.MiddlewareFunc {
	burst := cfg.RateBurst
	if burst < 1 {
		burst = int(math.Ceil(cfg.RateLimit))
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/health" || p == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RateLimit),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if agent := logging.AgentFromContext(c.Request().Context()); agent != "" {
				return "agent:" + agent, nil
			}
			return "ip:" + c.RealIP(), nil
		},
	})
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/stats", s.handleStats)
	v1.POST("/search", s.handleSearch)
	v1.POST("/check", s.handleCheck)
	v1.POST("/incidents", s.handleStoreIncident)
	v1.POST("/patterns/match", s.handleMatchPatterns)
	v1.POST("/patterns/extract", s.handleExtractPatterns)
	v1.POST("/aggregate", s.handleAggregate)
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves until Shutdown; a graceful shutdown returns nil.
func (s *Server) Start() error {
	addr := s.Addr()
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
