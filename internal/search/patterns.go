package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

// Pattern score weights.
const (
	SignatureWeight  = 0.7
	PatternTagWeight = 0.3
)

// PatternMatch is a scored pattern.
type PatternMatch struct {
	Pattern       *incident.Pattern `json:"pattern"`
	Score         float64           `json:"score"`
	SignatureHits []string          `json:"signature_hits,omitempty"`
	TagHits       []string          `json:"tag_hits,omitempty"`
}

// PatternResult is the outcome of a pattern match.
type PatternResult struct {
	Query         string         `json:"query"`
	Keywords      []string       `json:"keywords"`
	Matches       []PatternMatch `json:"matches"`
	TotalPatterns int            `json:"total_patterns"`
	Duration      time.Duration  `json:"duration"`
}

// MatchPatterns ranks stored patterns against query.
func (e *Engine) MatchPatterns(ctx context.Context, query string, opts Options) (*PatternResult, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	c, err := e.loadCorpus(ctx, false, true)
	if err != nil {
		return nil, err
	}
	return e.matchCorpus(ctx, NewQuery(query), c.patterns, opts)
}

func (e *Engine) matchCorpus(ctx context.Context, q Query, patterns []*incident.Pattern, opts Options) (*PatternResult, error) {
	start := time.Now()
	lim := opts.withDefaults()

	res := &PatternResult{
		Query:         q.Text,
		Keywords:      q.Keywords,
		Matches:       []PatternMatch{},
		TotalPatterns: len(patterns),
	}
	if len(patterns) == 0 || len(q.Keywords) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	scored := make([]PatternMatch, len(patterns))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range patterns {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = ScorePattern(q, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]PatternMatch, 0, len(scored))
	for _, m := range scored {
		if m.Pattern != nil && m.Score >= lim.threshold {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > lim.maxResults {
		out = out[:lim.maxResults]
	}
	res.Matches = out
	res.Duration = time.Since(start)
	e.metrics.recordSearch("patterns", res.Duration.Seconds(), len(out))

	e.logger.Debug("pattern match complete",
		zap.String("query", q.Text),
		zap.Int("patterns", len(patterns)),
		zap.Int("results", len(out)))
	return res, nil
}

// ScorePattern weighs the fraction of query keywords found in the detection
// signature against the fraction found in the tags.
func ScorePattern(q Query, p *incident.Pattern) PatternMatch {
	m := PatternMatch{Pattern: p}
	if p == nil || len(q.Keywords) == 0 {
		return m
	}

	sigHits := 0
	tagHits := 0
	for _, kw := range q.Keywords {
		if hit, ok := containsEither(p.DetectionSignature, kw); ok {
			sigHits++
			m.SignatureHits = append(m.SignatureHits, hit)
		}
		if hit, ok := containsEither(p.Tags, kw); ok {
			tagHits++
			m.TagHits = append(m.TagHits, hit)
		}
	}

	n := float64(len(q.Keywords))
	m.Score = clamp01(SignatureWeight*float64(sigHits)/n + PatternTagWeight*float64(tagHits)/n)
	return m
}

// containsEither returns the first entry that contains kw or is contained
// in it.
func containsEither(entries []string, kw string) (string, bool) {
	for _, e := range entries {
		le := strings.ToLower(strings.TrimSpace(e))
		if le == "" {
			continue
		}
		if strings.Contains(le, kw) || strings.Contains(kw, le) {
			return e, true
		}
	}
	return "", false
}
