package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/debugmem/internal/search"

// Defaults applied to unset Options fields.
const (
	DefaultThreshold  = 0.5
	DefaultMaxResults = 10
)

// Options bound a search. A nil Threshold and a non-positive MaxResults
// select the defaults; an explicit threshold of 0 keeps every match.
type Options struct {
	Threshold  *float64 `json:"threshold,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

// Threshold returns a pointer to v for Options.Threshold.
func Threshold(v float64) *float64 { return &v }

// WithThreshold returns a copy of o with the threshold set to v.
func (o Options) WithThreshold(v float64) Options {
	o.Threshold = Threshold(v)
	return o
}

// limits are resolved Options.
type limits struct {
	threshold  float64
	maxResults int
}

func (o Options) withDefaults() limits {
	l := limits{threshold: DefaultThreshold, maxResults: o.MaxResults}
	if o.Threshold != nil {
		l.threshold = clamp01(*o.Threshold)
	}
	if l.maxResults <= 0 {
		l.maxResults = DefaultMaxResults
	}
	return l
}

// Result is the outcome of an incident search.
type Result struct {
	Query    string   `json:"query"`
	Keywords []string `json:"keywords"`

	// Matches are deduplicated by incident id and sorted by score.
	Matches []Match `json:"matches"`

	// StrategyCounts holds the raw match count of every strategy that ran.
	StrategyCounts map[Strategy]int `json:"strategy_counts"`

	// Speedup is the number of strategies that produced at least one match.
	Speedup int `json:"speedup"`

	TotalIncidents int           `json:"total_incidents"`
	TotalPatterns  int           `json:"total_patterns"`
	Duration       time.Duration `json:"duration"`
}

// Engine runs searches against a store.
type Engine struct {
	store      store.Store
	executors  []Executor
	fuzzyFloor float64
	timeout    time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer
	metrics    *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFuzzyFloor sets the minimum accepted Jaro-Winkler similarity.
func WithFuzzyFloor(f float64) Option {
	return func(e *Engine) {
		if f > 0 && f <= 1 {
			e.fuzzyFloor = f
		}
	}
}

// WithTimeout bounds corpus loading and strategy execution. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithExecutors replaces the strategy set.
func WithExecutors(execs ...Executor) Option {
	return func(e *Engine) { e.executors = execs }
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over st.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	e := &Engine{
		store:      st,
		fuzzyFloor: DefaultFuzzyFloor,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.executors == nil {
		e.executors = DefaultExecutors(e.fuzzyFloor)
	}
	return e, nil
}

type corpus struct {
	incidents []*incident.Incident
	patterns  []*incident.Pattern
}

// loadCorpus reads incidents and patterns concurrently, once.
func (e *Engine) loadCorpus(ctx context.Context, wantIncidents, wantPatterns bool) (*corpus, error) {
	c := &corpus{}
	g, gctx := errgroup.WithContext(ctx)
	if wantIncidents {
		g.Go(func() error {
			incs, err := e.store.LoadAllIncidents(gctx)
			if err != nil {
				return fmt.Errorf("loading incidents: %w", err)
			}
			c.incidents = incs
			return nil
		})
	}
	if wantPatterns {
		g.Go(func() error {
			ps, err := e.store.LoadAllPatterns(gctx)
			if err != nil {
				return fmt.Errorf("loading patterns: %w", err)
			}
			c.patterns = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// Search ranks incidents against query.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	c, err := e.loadCorpus(ctx, true, true)
	if err != nil {
		return nil, err
	}
	return e.searchCorpus(ctx, NewQuery(query), c, opts)
}

func (e *Engine) searchCorpus(ctx context.Context, q Query, c *corpus, opts Options) (*Result, error) {
	start := time.Now()
	lim := opts.withDefaults()

	res := &Result{
		Query:          q.Text,
		Keywords:       q.Keywords,
		Matches:        []Match{},
		StrategyCounts: map[Strategy]int{},
		TotalIncidents: len(c.incidents),
		TotalPatterns:  len(c.patterns),
	}
	if len(c.incidents) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	perStrategy := make([][]Match, len(e.executors))
	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range e.executors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, span := e.tracer.Start(gctx, "search.strategy")
			defer span.End()

			matches := ex.Run(q, c.incidents)
			perStrategy[i] = matches

			span.SetAttributes(
				attribute.String("strategy", string(ex.Name())),
				attribute.Int("matches", len(matches)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running strategies: %w", err)
	}

	for i, ex := range e.executors {
		n := len(perStrategy[i])
		res.StrategyCounts[ex.Name()] = n
		if n > 0 {
			res.Speedup++
		}
		e.metrics.recordStrategy(ex.Name(), n)
		if ce := e.logger.Check(logging.TraceLevel, "strategy complete"); ce != nil {
			ce.Write(zap.String("strategy", string(ex.Name())), zap.Int("matches", n))
		}
	}

	res.Matches = rank(merge(perStrategy), lim)
	res.Duration = time.Since(start)
	e.metrics.recordSearch("incidents", res.Duration.Seconds(), len(res.Matches))

	e.logger.Debug("search complete",
		zap.String("query", q.Text),
		zap.Int("corpus", len(c.incidents)),
		zap.Int("results", len(res.Matches)),
		zap.Int("strategies_matched", res.Speedup),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// merge keeps the highest scoring match per incident id. Strategies are
// walked in order and a later match replaces an earlier one only when its
// score is strictly higher, so discovery order is preserved.
func merge(perStrategy [][]Match) []Match {
	index := make(map[string]int)
	var merged []Match
	for _, matches := range perStrategy {
		for _, m := range matches {
			id := m.Incident.ID
			if i, ok := index[id]; ok {
				if m.Score > merged[i].Score {
					merged[i] = m
				}
				continue
			}
			index[id] = len(merged)
			merged = append(merged, m)
		}
	}
	return merged
}

// rank filters by threshold, sorts by score descending and truncates. The
// surviving incidents are cloned with their similarity score attached.
func rank(matches []Match, lim limits) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= lim.threshold {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > lim.maxResults {
		out = out[:lim.maxResults]
	}
	for i := range out {
		inc := out[i].Incident.Clone()
		inc.SimilarityScore = out[i].Score
		out[i].Incident = inc
	}
	return out
}
