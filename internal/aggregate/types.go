// Package aggregate fuses scored items from different sources into a single
// ranked, deduplicated list.
//
// Inputs are live domain assessments, compact incident summaries and compact
// pattern summaries. Each becomes a ScoredItem with one fused score:
//
//	score = 0.35*match + 0.25*confidence + 0.15*recency + 0.25*verification
//
// followed by multiplicative boosts and a clamp to [0, 1].
package aggregate

import (
	"time"
)

// ItemType discriminates ScoredItem payloads.
type ItemType string

const (
	TypeAssessment ItemType = "assessment"
	TypeIncident   ItemType = "incident"
	TypePattern    ItemType = "pattern"
)

// Assessment is a live diagnosis produced by a domain analyzer. It has no
// timestamp and is always treated as current.
type Assessment struct {
	Domain           string   `json:"domain"`
	Summary          string   `json:"summary"`
	Confidence       float64  `json:"confidence"`
	ProbableCauses   []string `json:"probable_causes,omitempty"`
	RelatedIncidents []string `json:"related_incidents,omitempty"`
	Actions          []string `json:"actions,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// Verification codes used by CompactIncident.
const (
	VerifiedCode   = "V"
	PartialCode    = "P"
	UnverifiedCode = "U"
)

// CompactIncident is a size-optimized incident summary. Nil Confidence and
// Similarity mean unknown and score as neutral; zero is a real value.
type CompactIncident struct {
	ID         string   `json:"i"`
	Symptom    string   `json:"s"`
	RootCause  string   `json:"rc,omitempty"`
	Fix        string   `json:"fx,omitempty"`
	Category   string   `json:"cat,omitempty"`
	Confidence *float64 `json:"cf,omitempty"`
	Verified   string   `json:"v"`
	Tags       []string `json:"t,omitempty"`

	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"ts,omitempty"`

	// Similarity is the retrieval score.
	Similarity *float64 `json:"sim,omitempty"`
}

// CompactPattern is a size-optimized pattern summary.
type CompactPattern struct {
	ID          string   `json:"i"`
	Name        string   `json:"n"`
	Category    string   `json:"cat,omitempty"`
	Solution    string   `json:"sol,omitempty"`
	SuccessRate float64  `json:"sr"`
	Uses        int      `json:"u"`
	Tags        []string `json:"t,omitempty"`

	// LastUsed is unix milliseconds.
	LastUsed int64 `json:"ts,omitempty"`

	// Match is a caller-supplied relevance score; nil means unknown.
	Match *float64 `json:"m,omitempty"`
}

// Float returns a pointer to v for the optional score fields.
func Float(v float64) *float64 { return &v }

// ScoredItem is the uniform shape all ranking operates on.
type ScoredItem struct {
	Type    ItemType `json:"type"`
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Domain  string   `json:"domain,omitempty"`
	Summary string   `json:"summary"`
	Actions []string `json:"actions,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	// Payload is the source Assessment, CompactIncident or CompactPattern.
	Payload any `json:"payload,omitempty"`

	timestamp time.Time
}

// Result is the aggregated, presentation-ready ranking.
type Result struct {
	Items []ScoredItem `json:"items"`

	// Confidence is the mean score of Items.
	Confidence float64 `json:"confidence"`

	Domains []string `json:"domains"`
	Actions []string `json:"actions"`

	TotalInputs int `json:"total_inputs"`
	BelowMin    int `json:"below_min"`
	Duplicates  int `json:"duplicates"`
}

// Config bounds aggregation. Zero values and a nil MinScore select the
// defaults; an explicit MinScore of 0 keeps every item.
type Config struct {
	MaxResults     int      `json:"max_results,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	DedupThreshold float64  `json:"dedup_threshold,omitempty"`
	MaxActions     int      `json:"max_actions,omitempty"`
}

// DefaultMinScore is the score below which items are dropped.
const DefaultMinScore = 0.3

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		MaxResults:     10,
		MinScore:       Float(DefaultMinScore),
		DedupThreshold: 0.8,
		MaxActions:     5,
	}
}

// minScore resolves MinScore.
func (c Config) minScore() float64 {
	if c.MinScore == nil {
		return DefaultMinScore
	}
	return *c.MinScore
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxResults <= 0 {
		c.MaxResults = d.MaxResults
	}
	if c.MinScore == nil {
		c.MinScore = d.MinScore
	} else {
		c.MinScore = Float(clamp01(*c.MinScore))
	}
	if c.DedupThreshold <= 0 {
		c.DedupThreshold = d.DedupThreshold
	}
	if c.MaxActions <= 0 {
		c.MaxActions = d.MaxActions
	}
	return c
}
