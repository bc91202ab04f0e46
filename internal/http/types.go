package http

import (
	"github.com/fyrsmithlabs/debugmem/internal/search"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

// QueryRequest is the request body for search, check and pattern match.
type QueryRequest struct {
	Query string `json:"query"`

	// Threshold is optional; when absent the configured default applies.
	Threshold  *float64 `json:"threshold,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

func (r QueryRequest) options() search.Options {
	return search.Options{Threshold: r.Threshold, MaxResults: r.MaxResults}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Counts    StatusCounts            `json:"counts"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// StatusCounts summarizes the memory corpus. Counts are -1 when the store
// could not be read.
type StatusCounts struct {
	Incidents   int `json:"incidents"`
	Patterns    int `json:"patterns"`
	Patternized int `json:"patternized"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
