package patterns

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Rejection reasons reported in metrics and ExtractResult.Skipped.
const (
	ReasonTooSmall      = "too_small"
	ReasonLowSimilarity = "low_similarity"
	ReasonExists        = "pattern_exists"
)

// Metrics holds Prometheus metrics for pattern extraction.
type Metrics struct {
	PatternsSynthesizedTotal *prometheus.CounterVec
	ClustersRejectedTotal    *prometheus.CounterVec
	TaggingFailuresTotal     prometheus.Counter
}

// NewMetrics registers the extraction metrics once per process.
//
// Metrics:
//   - debugmem_patterns_synthesized_total{mode} - patterns created (batch|auto)
//   - debugmem_pattern_clusters_rejected_total{reason} - clusters that did not qualify
//   - debugmem_pattern_tagging_failures_total - incidents that could not be back-tagged
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			PatternsSynthesizedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "debugmem_patterns_synthesized_total",
					Help: "Total number of patterns synthesized",
				},
				[]string{"mode"},
			),
			ClustersRejectedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "debugmem_pattern_clusters_rejected_total",
					Help: "Total number of incident clusters that did not produce a pattern",
				},
				[]string{"reason"},
			),
			TaggingFailuresTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "debugmem_pattern_tagging_failures_total",
					Help: "Total number of incidents that could not be marked as patternized",
				},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) synthesized(mode string) {
	if m != nil {
		m.PatternsSynthesizedTotal.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) rejected(reason string) {
	if m != nil {
		m.ClustersRejectedTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) taggingFailed() {
	if m != nil {
		m.TaggingFailuresTotal.Inc()
	}
}
