package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/keywords"
)

// Strategy names a matching heuristic.
type Strategy string

const (
	StrategyExact    Strategy = "exact"
	StrategyTag      Strategy = "tag"
	StrategyFuzzy    Strategy = "fuzzy"
	StrategyCategory Strategy = "category"
)

// Fixed strategy scores.
const (
	ExactScore    = 1.0
	TagScore      = 0.9
	FuzzyScale    = 0.85
	CategoryScore = 0.6

	// DefaultFuzzyFloor is the minimum Jaro-Winkler similarity accepted.
	DefaultFuzzyFloor = 0.7
)

// Query is a normalized search query shared by all strategies.
type Query struct {
	Text     string
	Lower    string
	Keywords []string
}

// NewQuery normalizes text.
func NewQuery(text string) Query {
	trimmed := strings.TrimSpace(text)
	return Query{
		Text:     trimmed,
		Lower:    strings.ToLower(trimmed),
		Keywords: keywords.Extract(trimmed),
	}
}

// Match is one strategy's verdict on one incident.
type Match struct {
	Incident   *incident.Incident `json:"incident"`
	Score      float64            `json:"score"`
	Strategy   Strategy           `json:"strategy"`
	Highlights []string           `json:"highlights,omitempty"`
}

// Executor scores a corpus against a query. Implementations must not mutate
// the corpus and must skip records missing the fields they inspect.
type Executor interface {
	Name() Strategy
	Run(q Query, corpus []*incident.Incident) []Match
}

// DefaultExecutors returns the four strategies in merge order.
func DefaultExecutors(fuzzyFloor float64) []Executor {
	return []Executor{
		Exact{},
		Tag{},
		Fuzzy{Floor: fuzzyFloor},
		Category{Table: DefaultCategories},
	}
}

// Exact matches incidents whose symptom contains the whole query.
type Exact struct{}

func (Exact) Name() Strategy { return StrategyExact }

func (Exact) Run(q Query, corpus []*incident.Incident) []Match {
	if q.Lower == "" {
		return nil
	}
	var out []Match
	for _, inc := range corpus {
		if inc == nil || inc.Symptom == "" {
			continue
		}
		lower := strings.ToLower(inc.Symptom)
		idx := strings.Index(lower, q.Lower)
		if idx < 0 {
			continue
		}
		highlight, ok := foldedSpan(inc.Symptom, idx, idx+len(q.Lower))
		if !ok {
			highlight = lower[idx : idx+len(q.Lower)]
		}
		out = append(out, Match{
			Incident:   inc,
			Score:      ExactScore,
			Strategy:   StrategyExact,
			Highlights: []string{highlight},
		})
	}
	return out
}

// foldedSpan returns the part of s that lower-cases to the byte range
// [lo, hi) of strings.ToLower(s). Case mapping can change a rune's width, so
// offsets are walked rune by rune.
func foldedSpan(s string, lo, hi int) (string, bool) {
	start, pos := -1, 0
	for i, r := range s {
		if pos == lo {
			start = i
		}
		if pos == hi && start >= 0 {
			return s[start:i], true
		}
		pos += utf8.RuneLen(unicode.ToLower(r))
	}
	if pos == hi && start >= 0 {
		return s[start:], true
	}
	return "", false
}

// Tag matches incidents with a tag that contains, or is contained in, a
// query keyword. Partial containment tolerates plural and compound variants.
type Tag struct{}

func (Tag) Name() Strategy { return StrategyTag }

func (Tag) Run(q Query, corpus []*incident.Incident) []Match {
	if len(q.Keywords) == 0 {
		return nil
	}
	var out []Match
	for _, inc := range corpus {
		if inc == nil || len(inc.Tags) == 0 {
			continue
		}
		var hits []string
		for _, tag := range inc.Tags {
			t := strings.ToLower(strings.TrimSpace(tag))
			if t == "" {
				continue
			}
			for _, kw := range q.Keywords {
				if strings.Contains(t, kw) || strings.Contains(kw, t) {
					hits = append(hits, tag)
					break
				}
			}
		}
		if len(hits) == 0 {
			continue
		}
		out = append(out, Match{
			Incident:   inc,
			Score:      TagScore,
			Strategy:   StrategyTag,
			Highlights: hits,
		})
	}
	return out
}

// Fuzzy compares the query to the symptom and root cause description with
// Jaro-Winkler similarity. Accepted scores are scaled by FuzzyScale so a
// fuzzy match never outranks a tag or exact match.
type Fuzzy struct {
	Floor float64
}

func (Fuzzy) Name() Strategy { return StrategyFuzzy }

func (f Fuzzy) Run(q Query, corpus []*incident.Incident) []Match {
	if q.Lower == "" {
		return nil
	}
	floor := f.Floor
	if floor <= 0 {
		floor = DefaultFuzzyFloor
	}
	jw := metrics.NewJaroWinkler()
	jw.CaseSensitive = false

	var out []Match
	for _, inc := range corpus {
		if inc == nil {
			continue
		}
		best, field := 0.0, ""
		if inc.Symptom != "" {
			if s := strutil.Similarity(q.Lower, strings.ToLower(inc.Symptom), jw); s > best {
				best, field = s, "symptom"
			}
		}
		if inc.RootCause.Description != "" {
			if s := strutil.Similarity(q.Lower, strings.ToLower(inc.RootCause.Description), jw); s > best {
				best, field = s, "root_cause"
			}
		}
		if field == "" || best < floor {
			continue
		}
		out = append(out, Match{
			Incident:   inc,
			Score:      clamp01(best * FuzzyScale),
			Strategy:   StrategyFuzzy,
			Highlights: []string{field},
		})
	}
	return out
}

// Category maps query keywords to domain categories and matches every
// incident filed under one of them.
type Category struct {
	Table []CategoryKeywords
}

func (Category) Name() Strategy { return StrategyCategory }

func (c Category) Run(q Query, corpus []*incident.Incident) []Match {
	hits := DetectCategories(c.Table, q.Keywords)
	if len(hits) == 0 {
		return nil
	}
	var out []Match
	for _, inc := range corpus {
		if inc == nil {
			continue
		}
		cat := strings.ToLower(strings.TrimSpace(inc.RootCause.Category))
		if cat == "" {
			continue
		}
		for _, hit := range hits {
			if cat == hit || strings.Contains(cat, hit) || strings.Contains(hit, cat) {
				out = append(out, Match{
					Incident:   inc,
					Score:      CategoryScore,
					Strategy:   StrategyCategory,
					Highlights: []string{hit},
				})
				break
			}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
