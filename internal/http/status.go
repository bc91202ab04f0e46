package http

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/memory"
)

// statusCounts summarizes the corpus for the status endpoint.
//
// Returns -1 counts if the service fails to report stats, so a broken
// backend degrades the status instead of failing it.
func statusCounts(ctx context.Context, svc memory.Service, logger *zap.Logger) (StatusCounts, bool) {
	st, err := svc.Stats(ctx)
	if err != nil {
		logger.Warn("status counts unavailable", zap.Error(err))
		return StatusCounts{Incidents: -1, Patterns: -1, Patternized: -1}, false
	}
	return StatusCounts{
		Incidents:   st.Incidents,
		Patterns:    st.Patterns,
		Patternized: st.Patternized,
	}, true
}
