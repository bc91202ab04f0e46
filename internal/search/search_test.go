package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/store"
)

var seq atomic.Int64

func newIncident(symptom, category string, tags ...string) *incident.Incident {
	n := seq.Add(1)
	return &incident.Incident{
		ID:        incident.NewIncidentID(time.Date(2026, 10, 1, 0, 0, int(n%60), 0, time.UTC)),
		Timestamp: time.Now(),
		Symptom:   symptom,
		RootCause: incident.RootCause{Description: "unrelated", Category: category, Confidence: 0.9},
		Tags:      tags,
	}
}

func seed(t *testing.T, incs ...*incident.Incident) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for _, inc := range incs {
		require.NoError(t, s.PersistIncident(context.Background(), inc))
	}
	return s
}

// failingStore fails every bulk read.
type failingStore struct {
	*store.MemoryStore
	err error
}

func (f *failingStore) LoadAllIncidents(context.Context) ([]*incident.Incident, error) {
	return nil, f.err
}

// countingExecutor records how often it ran.
type countingExecutor struct {
	calls atomic.Int32
}

func (c *countingExecutor) Name() Strategy { return "counting" }

func (c *countingExecutor) Run(Query, []*incident.Incident) []Match {
	c.calls.Add(1)
	return nil
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	e, err := New(store.NewMemoryStore(), WithFuzzyFloor(0.8), WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, 0.8, e.fuzzyFloor)
	assert.Len(t, e.executors, 4)
}

func TestSearch_ScenarioExactMatch(t *testing.T) {
	s := seed(t, newIncident("Sentry logger not working properly", "configuration", "logger", "sentry", "config"))
	e, err := New(s)
	require.NoError(t, err)

	res, err := e.Search(context.Background(), "logger not working", Options{})
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	m := res.Matches[0]
	assert.Equal(t, StrategyExact, m.Strategy)
	assert.Equal(t, 1.0, m.Score)
	assert.Equal(t, 1.0, m.Incident.SimilarityScore)
	assert.Equal(t, []string{"logger not working"}, m.Highlights)
	assert.GreaterOrEqual(t, res.Speedup, 2, "exact and tag both matched")
	assert.Equal(t, 1, res.TotalIncidents)
}

func TestSearch_ExactDominatesFuzzy(t *testing.T) {
	exact := newIncident("the sentry logger silent after deploy", "observability")
	fuzzy := newIncident("sentry loger silent", "observability", "misc")
	e, err := New(seed(t, fuzzy, exact))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), "sentry logger silent", Options{})
	require.NoError(t, err)

	require.Len(t, res.Matches, 2)
	assert.Equal(t, exact.ID, res.Matches[0].Incident.ID)
	assert.Equal(t, 1.0, res.Matches[0].Score)
	assert.Equal(t, fuzzy.ID, res.Matches[1].Incident.ID)
	assert.Equal(t, StrategyFuzzy, res.Matches[1].Strategy)
	assert.Less(t, res.Matches[1].Score, res.Matches[0].Score)
}

func TestSearch_EmptyCorpusShortCircuits(t *testing.T) {
	counter := &countingExecutor{}
	e, err := New(store.NewMemoryStore(), WithExecutors(counter))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), "anything", Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.NotNil(t, res.Matches)
	assert.Zero(t, res.Speedup)
	assert.Zero(t, counter.calls.Load())
}

func TestSearch_ThresholdMonotonic(t *testing.T) {
	s := seed(t,
		newIncident("database connection timeout under load", "database", "postgres", "timeout"),
		newIncident("slow query on reports page", "performance", "query"),
		newIncident("connection pool exhausted", "database-pool", "pool"),
		newIncident("button misaligned", "ui", "css"),
	)
	e, err := New(s)
	require.NoError(t, err)

	prev := -1
	for _, th := range []float64{0, 0.05, 0.3, 0.5, 0.6, 0.7, 0.9, 1.0} {
		res, err := e.Search(context.Background(), "database connection timeout", Options{Threshold: Threshold(th)})
		require.NoError(t, err)
		if prev >= 0 {
			assert.LessOrEqual(t, len(res.Matches), prev, "threshold %v", th)
		}
		prev = len(res.Matches)
		for _, m := range res.Matches {
			assert.GreaterOrEqual(t, m.Score, th)
			assert.LessOrEqual(t, m.Score, 1.0)
		}
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	assert.Equal(t, limits{threshold: DefaultThreshold, maxResults: DefaultMaxResults}, Options{}.withDefaults())
	assert.Equal(t, limits{threshold: 0, maxResults: 3}, Options{Threshold: Threshold(0), MaxResults: 3}.withDefaults())
	assert.Equal(t, 1.0, Options{}.WithThreshold(1.7).withDefaults().threshold)
	assert.Equal(t, 0.0, Options{}.WithThreshold(-0.2).withDefaults().threshold)
}

func TestSearch_DedupKeepsHighestScore(t *testing.T) {
	inc := newIncident("react hooks infinite loop", "react-hooks", "react", "hooks")
	e, err := New(seed(t, inc))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), "react hooks infinite loop", Options{})
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, StrategyExact, res.Matches[0].Strategy)
	assert.Equal(t, 4, len(res.StrategyCounts))
	assert.Equal(t, 1, res.StrategyCounts[StrategyCategory])
}

func TestSearch_MaxResultsAndOrder(t *testing.T) {
	var incs []*incident.Incident
	for i := 0; i < 15; i++ {
		incs = append(incs, newIncident("cache miss storm", "caching", "cache"))
	}
	e, err := New(seed(t, incs...))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), "cache", Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 5)

	res, err = e.Search(context.Background(), "cache", Options{})
	require.NoError(t, err)
	assert.Len(t, res.Matches, DefaultMaxResults)
}

func TestSearch_DoesNotMutateStore(t *testing.T) {
	inc := newIncident("panic in handler", "api", "panic")
	s := seed(t, inc)
	e, err := New(s)
	require.NoError(t, err)

	_, err = e.Search(context.Background(), "panic in handler", Options{})
	require.NoError(t, err)

	got, err := s.GetIncident(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Zero(t, got.SimilarityScore)
}

func TestSearch_StoreFailure(t *testing.T) {
	boom := errors.New("disk gone")
	e, err := New(&failingStore{MemoryStore: store.NewMemoryStore(), err: boom})
	require.NoError(t, err)

	_, err = e.Search(context.Background(), "x", Options{})
	assert.ErrorIs(t, err, boom)
}

func TestSearch_Cancelled(t *testing.T) {
	e, err := New(seed(t, newIncident("something broke", "api")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Search(ctx, "something", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_LogsStrategyCountsAtTrace(t *testing.T) {
	s := seed(t, newIncident("database pool exhausted", "database", "postgres"))
	tl := logging.NewTestLogger()
	e, err := New(s, WithLogger(tl.Underlying()))
	require.NoError(t, err)

	_, err = e.Search(context.Background(), "pool exhausted", Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, tl.FilterMessage("strategy complete").Len())
	tl.AssertLogged(t, logging.TraceLevel, "strategy complete")
	tl.AssertField(t, "strategy complete", "strategy", "fuzzy")
}
