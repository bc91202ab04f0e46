package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/store"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, incident.ErrInvalidIncident), errors.Is(err, incident.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every error as an ErrorResponse. Internal errors are
// logged and reported without detail.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := statusFor(err)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", zap.Error(err), zap.String("uri", c.Request().RequestURI))
			if he == nil {
				msg = http.StatusText(code)
			}
		}

		resp := ErrorResponse{
			Error:     msg,
			RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		if werr := c.JSON(code, resp); werr != nil {
			logger.Warn("failed to write error response", zap.Error(werr))
		}
	}
}

func bindQuery(c echo.Context) (QueryRequest, error) {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if t := req.Threshold; t != nil && (math.IsNaN(*t) || *t < 0 || *t > 1) {
		return req, echo.NewHTTPError(http.StatusBadRequest, "threshold must be between 0 and 1")
	}
	if req.MaxResults < 0 {
		return req, echo.NewHTTPError(http.StatusBadRequest, "max_results must not be negative")
	}
	return req, nil
}

// handleHealth returns a simple liveness response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStatus reports corpus counts and exporter health.
func (s *Server) handleStatus(c echo.Context) error {
	counts, ok := statusCounts(c.Request().Context(), s.svc, s.logger)
	resp := StatusResponse{
		Status:  "ok",
		Version: s.version,
		Counts:  counts,
	}
	if !ok {
		resp.Status = "degraded"
	}
	if s.tel != nil {
		h := s.tel.Health()
		resp.Telemetry = &h
		if !h.Healthy {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleSearch(c echo.Context) error {
	req, err := bindQuery(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Search(c.Request().Context(), req.Query, req.options())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCheck(c echo.Context) error {
	req, err := bindQuery(c)
	if err != nil {
		return err
	}
	res, err := s.svc.CheckMemory(c.Request().Context(), req.Query, req.options())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleMatchPatterns(c echo.Context) error {
	req, err := bindQuery(c)
	if err != nil {
		return err
	}
	res, err := s.svc.MatchPatterns(c.Request().Context(), req.Query, req.options())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleExtractPatterns runs batch extraction. A partial tagging failure
// still returns the created patterns with 207.
func (s *Server) handleExtractPatterns(c echo.Context) error {
	var req patterns.ExtractOptions
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MinIncidents < 0 || req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "min_incidents must not be negative and min_similarity must be between 0 and 1")
	}

	res, err := s.svc.ExtractPatterns(c.Request().Context(), req)
	if errors.Is(err, patterns.ErrPartialTagging) && res != nil {
		s.logger.Warn("pattern extraction tagged incidents partially", zap.Error(err))
		return c.JSON(http.StatusMultiStatus, res)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleStoreIncident persists an incident and reports any pattern the
// auto-extraction trigger produced.
func (s *Server) handleStoreIncident(c echo.Context) error {
	var inc incident.Incident
	if err := c.Bind(&inc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if inc.Agent == "" {
		inc.Agent = logging.AgentFromContext(c.Request().Context())
	}
	res, err := s.svc.StoreIncident(c.Request().Context(), &inc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleAggregate(c echo.Context) error {
	var req memory.AggregateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := s.svc.Aggregate(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
