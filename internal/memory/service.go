// Package memory is the entry point to the debugging memory. It wires the
// store, the search engine, the pattern extractor and the result aggregator
// behind one Service with tracing, metrics and logging.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/aggregate"
	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/search"
	"github.com/fyrsmithlabs/debugmem/internal/store"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/debugmem/internal/memory"

// ErrServiceClosed is returned by every operation after Close.
var ErrServiceClosed = errors.New("memory service is closed")

// Service provides the debugging memory operations.
type Service interface {
	// Search finds incidents similar to query using every strategy in parallel.
	Search(ctx context.Context, query string, opts search.Options) (*search.Result, error)

	// MatchPatterns ranks stored patterns against query.
	MatchPatterns(ctx context.Context, query string, opts search.Options) (*search.PatternResult, error)

	// CheckMemory consults patterns first and falls back to incidents.
	CheckMemory(ctx context.Context, query string, opts search.Options) (*search.CheckResult, error)

	// ExtractPatterns runs batch extraction over the whole corpus.
	ExtractPatterns(ctx context.Context, opts patterns.ExtractOptions) (*patterns.ExtractResult, error)

	// StoreIncident validates and persists an incident, then runs the
	// auto-extraction trigger when enabled.
	StoreIncident(ctx context.Context, inc *incident.Incident) (*StoreResult, error)

	// MaybeExtract runs the auto-extraction trigger for an incident that is
	// already stored.
	MaybeExtract(ctx context.Context, inc *incident.Incident) (*incident.Pattern, error)

	// Aggregate fuses assessments, incidents and patterns into one ranked list.
	Aggregate(ctx context.Context, req *AggregateRequest) (*aggregate.Result, error)

	// Stats summarizes the stored corpus.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the service and the underlying store.
	Close() error
}

// Config configures the service.
type Config struct {
	// Search holds the default threshold and result cap.
	Search search.Options

	// FuzzyFloor is the minimum Jaro-Winkler similarity of the fuzzy strategy.
	FuzzyFloor float64

	// SearchTimeout bounds a single search. Zero disables it.
	SearchTimeout time.Duration

	// Extraction holds the pattern extraction thresholds.
	Extraction patterns.Config

	// AutoExtract runs the auto-extraction trigger after every stored incident.
	AutoExtract bool

	// Aggregation configures the result aggregator.
	Aggregation aggregate.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Search: search.Options{
			Threshold:  search.Threshold(search.DefaultThreshold),
			MaxResults: search.DefaultMaxResults,
		},
		FuzzyFloor:  search.DefaultFuzzyFloor,
		Extraction:  patterns.DefaultConfig(),
		AutoExtract: true,
		Aggregation: aggregate.DefaultConfig(),
	}
}

// StoreResult is the outcome of StoreIncident.
type StoreResult struct {
	Incident *incident.Incident `json:"incident"`

	// Pattern is set when storing the incident completed a cluster.
	Pattern *incident.Pattern `json:"pattern,omitempty"`

	// Warning carries a non-fatal auto-extraction failure.
	Warning string `json:"warning,omitempty"`
}

// AggregateRequest lists the inputs to fuse. When Query is set, the service
// also searches incidents and patterns for it and adds the results.
type AggregateRequest struct {
	Query       string                      `json:"query,omitempty"`
	Assessments []aggregate.Assessment      `json:"assessments,omitempty"`
	Incidents   []aggregate.CompactIncident `json:"incidents,omitempty"`
	Patterns    []aggregate.CompactPattern  `json:"patterns,omitempty"`
	Config      *aggregate.Config           `json:"config,omitempty"`
}

// Stats summarizes the stored corpus.
type Stats struct {
	Incidents   int            `json:"incidents"`
	Patterns    int            `json:"patterns"`
	Patternized int            `json:"patternized"`
	Verified    int            `json:"verified"`
	Categories  map[string]int `json:"categories"`
	MeanQuality float64        `json:"mean_quality"`
}

// Option configures the service.
type Option func(*service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTelemetry takes the tracer and meter from tel instead of the globals.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *service) {
		if tel != nil {
			s.tracer = tel.Tracer(instrumentationName)
			s.meter = tel.Meter(instrumentationName)
		}
	}
}

// WithSearchMetrics sets the Prometheus sink of the search engine.
func WithSearchMetrics(m *search.Metrics) Option {
	return func(s *service) { s.searchMetrics = m }
}

// WithPatternMetrics sets the Prometheus sink of the extractor.
func WithPatternMetrics(m *patterns.Metrics) Option {
	return func(s *service) { s.patternMetrics = m }
}

// WithExtractor shares an extractor with a scheduler or watcher so that all
// of them serialize on the same per-category locks.
func WithExtractor(e *patterns.Extractor) Option {
	return func(s *service) { s.extractor = e }
}

// WithClock overrides the time source used for ids and recency.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// service implements the Service interface.
type service struct {
	config    *Config
	store     store.Store
	engine    *search.Engine
	extractor *patterns.Extractor
	logger    *zap.Logger
	now       func() time.Time

	searchMetrics  *search.Metrics
	patternMetrics *patterns.Metrics

	// Telemetry
	tracer           trace.Tracer
	meter            metric.Meter
	searchCounter    metric.Int64Counter
	extractedCounter metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewService creates a memory service over st.
func NewService(cfg *Config, st store.Store, opts ...Option) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if st == nil {
		return nil, errors.New("store is required")
	}

	s := &service{
		config: cfg,
		store:  st,
		logger: zap.NewNop(),
		now:    time.Now,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine, err := search.New(st,
		search.WithLogger(s.logger.Named("search")),
		search.WithFuzzyFloor(cfg.FuzzyFloor),
		search.WithTimeout(cfg.SearchTimeout),
		search.WithMetrics(s.searchMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("creating search engine: %w", err)
	}
	s.engine = engine

	if s.extractor == nil {
		extractor, err := patterns.NewExtractor(st,
			patterns.WithConfig(cfg.Extraction),
			patterns.WithLogger(s.logger.Named("patterns")),
			patterns.WithMetrics(s.patternMetrics),
			patterns.WithClock(s.now),
		)
		if err != nil {
			return nil, fmt.Errorf("creating extractor: %w", err)
		}
		s.extractor = extractor
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.searchCounter, err = s.meter.Int64Counter(
		"debugmem.search.requests_total",
		metric.WithDescription("Total number of memory lookups"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		s.logger.Warn("failed to create search counter", zap.Error(err))
	}

	s.extractedCounter, err = s.meter.Int64Counter(
		"debugmem.patterns.extracted_total",
		metric.WithDescription("Total number of patterns produced by extraction"),
		metric.WithUnit("{pattern}"),
	)
	if err != nil {
		s.logger.Warn("failed to create extracted counter", zap.Error(err))
	}
}

func (s *service) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

func (s *service) countSearch(ctx context.Context, kind string) {
	if s.searchCounter != nil {
		s.searchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (s *service) countExtracted(ctx context.Context, mode string, n int) {
	if s.extractedCounter != nil && n > 0 {
		s.extractedCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
	}
}

// searchOptions fills fields the caller left unset from the configured
// defaults. An explicit zero threshold is kept.
func (s *service) searchOptions(opts search.Options) search.Options {
	if opts.Threshold == nil {
		opts.Threshold = s.config.Search.Threshold
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = s.config.Search.MaxResults
	}
	return opts
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Search finds incidents similar to query.
func (s *service) Search(ctx context.Context, query string, opts search.Options) (*search.Result, error) {
	ctx, span := s.tracer.Start(ctx, "memory.search")
	defer span.End()

	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	s.countSearch(ctx, "incidents")

	res, err := s.engine.Search(ctx, query, s.searchOptions(opts))
	if err != nil {
		spanError(span, err)
		return nil, fmt.Errorf("searching incidents: %w", err)
	}

	span.SetAttributes(
		attribute.Int("keywords", len(res.Keywords)),
		attribute.Int("results", len(res.Matches)),
		attribute.Int("speedup", res.Speedup),
	)
	return res, nil
}

// MatchPatterns ranks stored patterns against query.
func (s *service) MatchPatterns(ctx context.Context, query string, opts search.Options) (*search.PatternResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.match_patterns")
	defer span.End()

	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	s.countSearch(ctx, "patterns")

	res, err := s.engine.MatchPatterns(ctx, query, s.searchOptions(opts))
	if err != nil {
		spanError(span, err)
		return nil, fmt.Errorf("matching patterns: %w", err)
	}

	span.SetAttributes(attribute.Int("results", len(res.Matches)))
	return res, nil
}

// CheckMemory consults patterns first and falls back to incidents.
func (s *service) CheckMemory(ctx context.Context, query string, opts search.Options) (*search.CheckResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.check")
	defer span.End()

	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	s.countSearch(ctx, "check")

	res, err := s.engine.CheckMemory(ctx, query, s.searchOptions(opts))
	if err != nil {
		spanError(span, err)
		return nil, fmt.Errorf("checking memory: %w", err)
	}

	span.SetAttributes(attribute.String("source", string(res.Source)))
	return res, nil
}

// ExtractPatterns runs batch extraction.
func (s *service) ExtractPatterns(ctx context.Context, opts patterns.ExtractOptions) (*patterns.ExtractResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.extract_patterns")
	defer span.End()

	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("auto_store", opts.AutoStore))

	res, err := s.extractor.ExtractPatterns(ctx, opts)
	if res != nil {
		span.SetAttributes(
			attribute.Int("categories", res.Categories),
			attribute.Int("patterns", len(res.Patterns)),
		)
		if opts.AutoStore {
			s.countExtracted(ctx, "batch", len(res.Patterns))
		}
	}
	if err != nil {
		spanError(span, err)
		if res != nil {
			return res, err
		}
		return nil, fmt.Errorf("extracting patterns: %w", err)
	}
	return res, nil
}

// StoreIncident validates inc, assigns an id and timestamp when missing,
// scores completeness, persists it and runs the auto-extraction trigger.
//
// An auto-extraction failure does not fail the call; it is logged and
// reported in StoreResult.Warning.
func (s *service) StoreIncident(ctx context.Context, inc *incident.Incident) (*StoreResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.store_incident")
	defer span.End()

	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, fmt.Errorf("%w: incident is required", incident.ErrInvalidIncident)
	}
	if err := inc.Validate(); err != nil {
		spanError(span, err)
		return nil, err
	}

	stored := inc.Clone()
	stored.SimilarityScore = 0
	if stored.Timestamp.IsZero() {
		stored.Timestamp = s.now().UTC()
	}
	if stored.ID == "" {
		stored.ID = incident.NewIncidentID(stored.Timestamp)
	}
	if stored.Verification.Status == "" {
		stored.Verification.Status = incident.StatusUnverified
	}
	stored.Completeness = incident.ScoreCompleteness(stored)

	span.SetAttributes(
		attribute.String("incident.id", stored.ID),
		attribute.String("incident.category", stored.RootCause.Category),
		attribute.Float64("incident.quality", stored.Completeness.QualityScore),
	)

	if err := s.store.PersistIncident(ctx, stored); err != nil {
		spanError(span, err)
		return nil, fmt.Errorf("persisting incident: %w", err)
	}
	s.logger.Info("incident stored",
		zap.String("id", stored.ID),
		zap.String("category", stored.RootCause.Category),
		zap.Float64("quality", stored.Completeness.QualityScore))

	res := &StoreResult{Incident: stored}
	if !s.config.AutoExtract {
		return res, nil
	}

	p, err := s.extractor.MaybeExtractOnStore(ctx, stored, patterns.AutoOptions{})
	if err != nil {
		s.logger.Warn("auto extraction failed",
			zap.String("id", stored.ID),
			zap.Error(err))
		res.Warning = err.Error()
	}
	if p != nil {
		res.Pattern = p
		s.countExtracted(ctx, "auto", 1)
		span.SetAttributes(attribute.String("pattern.id", p.ID))
	}
	return res, nil
}

// MaybeExtract runs the auto-extraction trigger for a stored incident.
func (s *service) MaybeExtract(ctx context.Context, inc *incident.Incident) (*incident.Pattern, error) {
	ctx, span := s.tracer.Start(ctx, "memory.auto_extract")
	defer span.End()

	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	p, err := s.extractor.MaybeExtractOnStore(ctx, inc, patterns.AutoOptions{})
	if p != nil {
		s.countExtracted(ctx, "auto", 1)
		span.SetAttributes(attribute.String("pattern.id", p.ID))
	}
	if err != nil {
		spanError(span, err)
		return p, err
	}
	return p, nil
}

// Aggregate fuses the request's inputs, optionally enriched by a search.
func (s *service) Aggregate(ctx context.Context, req *AggregateRequest) (*aggregate.Result, error) {
	ctx, span := s.tracer.Start(ctx, "memory.aggregate")
	defer span.End()

	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if req == nil {
		req = &AggregateRequest{}
	}

	incs := append([]aggregate.CompactIncident(nil), req.Incidents...)
	pats := append([]aggregate.CompactPattern(nil), req.Patterns...)

	if strings.TrimSpace(req.Query) != "" {
		s.countSearch(ctx, "aggregate")
		opts := s.searchOptions(search.Options{})

		sr, err := s.engine.Search(ctx, req.Query, opts)
		if err != nil {
			spanError(span, err)
			return nil, fmt.Errorf("searching incidents: %w", err)
		}
		for _, m := range sr.Matches {
			incs = append(incs, aggregate.FromIncident(m.Incident))
		}

		pr, err := s.engine.MatchPatterns(ctx, req.Query, opts)
		if err != nil {
			spanError(span, err)
			return nil, fmt.Errorf("matching patterns: %w", err)
		}
		for _, m := range pr.Matches {
			pats = append(pats, aggregate.FromPattern(m.Pattern, m.Score))
		}
	}

	cfg := s.config.Aggregation
	if req.Config != nil {
		cfg = *req.Config
	}

	res := aggregate.Aggregate(req.Assessments, incs, pats, cfg, s.now())
	span.SetAttributes(
		attribute.Int("inputs", res.TotalInputs),
		attribute.Int("results", len(res.Items)),
		attribute.Float64("confidence", res.Confidence),
	)
	return res, nil
}

// Stats summarizes the stored corpus.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	incs, err := s.store.LoadAllIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading incidents: %w", err)
	}
	pats, err := s.store.LoadAllPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading patterns: %w", err)
	}

	st := &Stats{
		Incidents:  len(incs),
		Patterns:   len(pats),
		Categories: make(map[string]int),
	}
	var quality float64
	for _, inc := range incs {
		if inc.Patternized {
			st.Patternized++
		}
		if inc.Verified() {
			st.Verified++
		}
		if cat := patterns.CategoryKey(inc.RootCause.Category); cat != "" {
			st.Categories[cat]++
		}
		quality += inc.Completeness.QualityScore
	}
	if len(incs) > 0 {
		st.MeanQuality = quality / float64(len(incs))
	}
	return st, nil
}

// SortedCategories returns the category names sorted by descending count.
func (st *Stats) SortedCategories() []string {
	out := make([]string, 0, len(st.Categories))
	for k := range st.Categories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if st.Categories[out[i]] != st.Categories[out[j]] {
			return st.Categories[out[i]] > st.Categories[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Close closes the service and the underlying store.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.store.Close()
}
