package patterns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/store"
)

// ErrPartialTagging is returned alongside a created pattern when some source
// incidents could not be marked as patternized.
var ErrPartialTagging = errors.New("pattern created but some incidents were not tagged")

// Config holds extraction thresholds.
type Config struct {
	// MinIncidents is the smallest cluster considered in batch mode.
	MinIncidents int

	// MinSimilarity is the commonality score a batch cluster must reach.
	MinSimilarity float64

	// MinConfidence filters incidents eligible for automatic extraction.
	MinConfidence float64

	// AutoMinSimilar is the smallest cluster for automatic extraction.
	AutoMinSimilar int

	// AutoMinQuality is the commonality score automatic extraction requires.
	AutoMinQuality float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinIncidents:   3,
		MinSimilarity:  0.7,
		MinConfidence:  0.7,
		AutoMinSimilar: 3,
		AutoMinQuality: 0.75,
	}
}

// ExtractOptions tune a batch run. Zero values fall back to the Config.
type ExtractOptions struct {
	MinIncidents  int     `json:"min_incidents,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`

	// AutoStore persists new patterns and tags their source incidents.
	AutoStore bool `json:"auto_store"`
}

// AutoOptions tune automatic extraction. Zero values fall back to the Config.
type AutoOptions struct {
	MinSimilar int     `json:"min_similar,omitempty"`
	MinQuality float64 `json:"min_quality,omitempty"`
}

// Skip records why a category did not produce a pattern.
type Skip struct {
	Category string  `json:"category"`
	Size     int     `json:"size"`
	Score    float64 `json:"score,omitempty"`
	Reason   string  `json:"reason"`
}

// ExtractResult is the outcome of a batch run.
type ExtractResult struct {
	Patterns   []*incident.Pattern `json:"patterns"`
	Skipped    []Skip              `json:"skipped"`
	Categories int                 `json:"categories"`
	Stored     bool                `json:"stored"`
	Duration   time.Duration       `json:"duration"`
}

// Extractor finds and synthesizes patterns over a store.
type Extractor struct {
	store   store.Store
	config  Config
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time

	// locks serialize the existence check and write per category.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConfig sets extraction thresholds.
func WithConfig(cfg Config) Option {
	return func(e *Extractor) { e.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an Extractor over st.
func NewExtractor(st store.Store, opts ...Option) (*Extractor, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	e := &Extractor{
		store:  st,
		config: DefaultConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the extractor's thresholds.
func (e *Extractor) Config() Config { return e.config }

func (e *Extractor) lock(category string) func() {
	e.locksMu.Lock()
	m, ok := e.locks[category]
	if !ok {
		m = &sync.Mutex{}
		e.locks[category] = m
	}
	e.locksMu.Unlock()
	m.Lock()
	return m.Unlock
}

// CategoryKey normalizes a root-cause category for clustering. It folds the
// way pattern ids do, lower-cased and hyphenated for display, so two
// categories share a cluster exactly when they share a pattern id. Blank
// categories yield "" and are never clustered.
func CategoryKey(category string) string {
	if strings.TrimSpace(category) == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(incident.FoldIDPart(category), "_", "-"))
}

// ExtractPatterns scans the whole corpus. Categories are processed in sorted
// order. Without AutoStore the run is a dry run: qualifying patterns are
// returned but nothing is written.
func (e *Extractor) ExtractPatterns(ctx context.Context, opts ExtractOptions) (*ExtractResult, error) {
	start := e.now()
	if opts.MinIncidents <= 0 {
		opts.MinIncidents = e.config.MinIncidents
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = e.config.MinSimilarity
	}

	incs, err := e.store.LoadAllIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading incidents: %w", err)
	}

	clusters := make(map[string][]*incident.Incident)
	for _, inc := range incs {
		if inc == nil || inc.Patternized {
			continue
		}
		key := CategoryKey(inc.RootCause.Category)
		if key == "" {
			continue
		}
		clusters[key] = append(clusters[key], inc)
	}
	categories := make([]string, 0, len(clusters))
	for k := range clusters {
		categories = append(categories, k)
	}
	sort.Strings(categories)

	res := &ExtractResult{
		Patterns:   []*incident.Pattern{},
		Skipped:    []Skip{},
		Categories: len(categories),
		Stored:     opts.AutoStore,
	}
	var tagErrs []error

	for _, cat := range categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cluster := clusters[cat]
		if len(cluster) < opts.MinIncidents {
			res.Skipped = append(res.Skipped, Skip{Category: cat, Size: len(cluster), Reason: ReasonTooSmall})
			e.metrics.rejected(ReasonTooSmall)
			continue
		}
		c := Analyze(cluster)
		if c.Score < opts.MinSimilarity {
			res.Skipped = append(res.Skipped, Skip{Category: cat, Size: len(cluster), Score: c.Score, Reason: ReasonLowSimilarity})
			e.metrics.rejected(ReasonLowSimilarity)
			continue
		}

		p, err := e.createIfAbsent(ctx, cat, cluster, c, opts.AutoStore, "batch")
		if errors.Is(err, ErrPartialTagging) {
			tagErrs = append(tagErrs, err)
		} else if err != nil {
			return nil, err
		}
		if p == nil {
			res.Skipped = append(res.Skipped, Skip{Category: cat, Size: len(cluster), Score: c.Score, Reason: ReasonExists})
			continue
		}
		res.Patterns = append(res.Patterns, p)
	}

	res.Duration = e.now().Sub(start)
	e.logger.Info("pattern extraction complete",
		zap.Int("incidents", len(incs)),
		zap.Int("categories", len(categories)),
		zap.Int("patterns", len(res.Patterns)),
		zap.Bool("stored", opts.AutoStore))

	if len(tagErrs) > 0 {
		return res, errors.Join(tagErrs...)
	}
	return res, nil
}

// MaybeExtractOnStore checks whether newInc completes a qualifying cluster in
// its category and, if so, creates the category's pattern and tags every
// member. It returns nil when nothing new was produced.
//
// If the pattern is written but some members cannot be tagged, the pattern is
// returned together with an error wrapping ErrPartialTagging.
func (e *Extractor) MaybeExtractOnStore(ctx context.Context, newInc *incident.Incident, opts AutoOptions) (*incident.Pattern, error) {
	if newInc == nil {
		return nil, nil
	}
	if opts.MinSimilar <= 0 {
		opts.MinSimilar = e.config.AutoMinSimilar
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = e.config.AutoMinQuality
	}
	cat := CategoryKey(newInc.RootCause.Category)
	if cat == "" {
		return nil, nil
	}

	incs, err := e.store.LoadAllIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading incidents: %w", err)
	}

	// The caller's copy of the new incident wins over the stored one.
	var cluster []*incident.Incident
	for _, inc := range incs {
		if inc.ID == newInc.ID {
			continue
		}
		if e.eligible(inc, cat) {
			cluster = append(cluster, inc)
		}
	}
	if e.eligible(newInc, cat) {
		cluster = append(cluster, newInc)
	}

	if len(cluster) < opts.MinSimilar {
		e.metrics.rejected(ReasonTooSmall)
		return nil, nil
	}
	c := Analyze(cluster)
	if c.Score < opts.MinQuality {
		e.logger.Debug("cluster below quality bar",
			zap.String("category", cat),
			zap.Int("size", len(cluster)),
			zap.Float64("score", c.Score))
		e.metrics.rejected(ReasonLowSimilarity)
		return nil, nil
	}

	return e.createIfAbsent(ctx, cat, cluster, c, true, "auto")
}

func (e *Extractor) eligible(inc *incident.Incident, cat string) bool {
	return inc != nil &&
		!inc.Patternized &&
		inc.RootCause.Confidence >= e.config.MinConfidence &&
		CategoryKey(inc.RootCause.Category) == cat
}

// createIfAbsent synthesizes the category's pattern unless it already exists.
// When persist is set the pattern is written and the cluster back-tagged.
func (e *Extractor) createIfAbsent(ctx context.Context, cat string, cluster []*incident.Incident, c Commonality, persist bool, mode string) (*incident.Pattern, error) {
	unlock := e.lock(cat)
	defer unlock()

	id := incident.PatternID(cat, incident.AutoPatternName)
	_, err := e.store.GetPattern(ctx, id)
	switch {
	case err == nil:
		e.logger.Debug("pattern already exists", zap.String("pattern_id", id))
		e.metrics.rejected(ReasonExists)
		return nil, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("checking pattern %s: %w", id, err)
	}

	p := Synthesize(cat, cluster, c, e.now())
	if !persist {
		return p, nil
	}

	if err := e.store.PersistPattern(ctx, p); err != nil {
		return nil, fmt.Errorf("persisting pattern %s: %w", id, err)
	}
	e.metrics.synthesized(mode)
	e.logger.Info("pattern synthesized",
		zap.String("pattern_id", p.ID),
		zap.String("category", cat),
		zap.String("mode", mode),
		zap.Int("incidents", len(cluster)),
		zap.Float64("commonality", c.Score))

	if err := e.tagCluster(ctx, p.ID, cluster); err != nil {
		return p, err
	}
	return p, nil
}

// tagCluster marks every member as consumed by patternID. Failures do not
// stop the loop; they are logged and returned together.
func (e *Extractor) tagCluster(ctx context.Context, patternID string, cluster []*incident.Incident) error {
	var errs []error
	for _, inc := range cluster {
		tagged := inc.Clone()
		tagged.PatternID = patternID
		tagged.Patternized = true
		if err := e.store.PersistIncident(ctx, tagged); err != nil {
			e.logger.Warn("failed to tag incident",
				zap.String("incident_id", inc.ID),
				zap.String("pattern_id", patternID),
				zap.Error(err))
			e.metrics.taggingFailed()
			errs = append(errs, fmt.Errorf("incident %s: %w", inc.ID, err))
			continue
		}
		inc.PatternID = patternID
		inc.Patternized = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialTagging, errors.Join(errs...))
	}
	return nil
}
