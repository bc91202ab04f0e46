package search

import (
	"context"
	"time"
)

// Source reports where a CheckMemory answer came from.
type Source string

const (
	SourcePatterns  Source = "patterns"
	SourceIncidents Source = "incidents"
	SourceNone      Source = "none"
)

// CheckResult answers "have we seen this before?".
type CheckResult struct {
	Query  string `json:"query"`
	Source Source `json:"source"`

	Patterns  []PatternMatch `json:"patterns"`
	Incidents []Match        `json:"incidents"`

	PatternsFound  int `json:"patterns_found"`
	IncidentsFound int `json:"incidents_found"`

	TotalIncidents int           `json:"total_incidents"`
	TotalPatterns  int           `json:"total_patterns"`
	Duration       time.Duration `json:"duration"`
}

// CheckMemory consults patterns first. Incidents are searched only when no
// pattern clears the threshold.
func (e *Engine) CheckMemory(ctx context.Context, query string, opts Options) (*CheckResult, error) {
	start := time.Now()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	c, err := e.loadCorpus(ctx, true, true)
	if err != nil {
		return nil, err
	}
	q := NewQuery(query)

	res := &CheckResult{
		Query:          q.Text,
		Source:         SourceNone,
		Patterns:       []PatternMatch{},
		Incidents:      []Match{},
		TotalIncidents: len(c.incidents),
		TotalPatterns:  len(c.patterns),
	}

	pr, err := e.matchCorpus(ctx, q, c.patterns, opts)
	if err != nil {
		return nil, err
	}
	if len(pr.Matches) > 0 {
		res.Source = SourcePatterns
		res.Patterns = pr.Matches
		res.PatternsFound = len(pr.Matches)
		res.Duration = time.Since(start)
		e.metrics.recordSearch("check", res.Duration.Seconds(), res.PatternsFound)
		return res, nil
	}

	sr, err := e.searchCorpus(ctx, q, c, opts)
	if err != nil {
		return nil, err
	}
	if len(sr.Matches) > 0 {
		res.Source = SourceIncidents
		res.Incidents = sr.Matches
		res.IncidentsFound = len(sr.Matches)
	}
	res.Duration = time.Since(start)
	e.metrics.recordSearch("check", res.Duration.Seconds(), res.IncidentsFound)
	return res, nil
}
