package search

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for retrieval.
type Metrics struct {
	StrategyMatchesTotal *prometheus.CounterVec
	SearchDuration       *prometheus.HistogramVec
	ResultsReturned      *prometheus.HistogramVec
}

// NewMetrics registers the search metrics once per process.
//
// Metrics:
//   - debugmem_search_strategy_matches_total{strategy} - raw matches per strategy
//   - debugmem_search_duration_seconds{kind} - search latency (incidents|patterns|check)
//   - debugmem_search_results{kind} - results returned after truncation
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StrategyMatchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "debugmem_search_strategy_matches_total",
					Help: "Total number of raw matches produced per strategy",
				},
				[]string{"strategy"},
			),
			SearchDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "debugmem_search_duration_seconds",
					Help:    "Search latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
				},
				[]string{"kind"},
			),
			ResultsReturned: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "debugmem_search_results",
					Help:    "Number of results returned per search",
					Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
				},
				[]string{"kind"},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) recordStrategy(s Strategy, matches int) {
	if m == nil {
		return
	}
	m.StrategyMatchesTotal.WithLabelValues(string(s)).Add(float64(matches))
}

func (m *Metrics) recordSearch(kind string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.SearchDuration.WithLabelValues(kind).Observe(seconds)
	m.ResultsReturned.WithLabelValues(kind).Observe(float64(results))
}
