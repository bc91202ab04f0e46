package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/aggregate"
	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/search"
)

// Tool names.
const (
	toolSearch          = "search"
	toolCheck           = "check"
	toolMatchPatterns   = "match_patterns"
	toolExtractPatterns = "extract_patterns"
	toolStoreIncident   = "store_incident"
	toolAggregate       = "aggregate"
	toolStats           = "stats"
)

var errInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidArgument, fmt.Sprintf(format, args...))
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolCheck,
		Description: "Check memory before debugging: returns matching patterns, or similar past incidents when no pattern matches",
	}, handle(s, toolCheck, s.check))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSearch,
		Description: "Search past incidents with exact, tag, fuzzy and category strategies run in parallel",
	}, handle(s, toolSearch, s.search))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolMatchPatterns,
		Description: "Rank stored patterns against a symptom by detection signature and tags",
	}, handle(s, toolMatchPatterns, s.matchPatterns))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolExtractPatterns,
		Description: "Mine recurring incident categories into patterns; a dry run unless auto_store is set",
	}, handle(s, toolExtractPatterns, s.extractPatterns))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolStoreIncident,
		Description: "Record a resolved incident; may synthesize a pattern when its category recurs",
	}, handle(s, toolStoreIncident, s.storeIncident))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolAggregate,
		Description: "Fuse assessments, incidents and patterns into one ranked, deduplicated list of findings",
	}, handle(s, toolAggregate, s.aggregate))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolStats,
		Description: "Summarize the stored incidents and patterns",
	}, handle(s, toolStats, s.stats))
}

// handle wraps a tool with metrics and logging. The summary becomes the text
// content of the result and out its structured content.
func handle[In, Out any](s *Server, name string, fn func(context.Context, In) (Out, string, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		out, summary, err := fn(ctx, args)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Debug("tool failed", zap.String("tool", name), zap.Error(err))
			var zero Out
			return nil, zero, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: summary}},
		}, out, nil
	}
}

// ===== RETRIEVAL TOOLS =====

type queryInput struct {
	Query      string   `json:"query" jsonschema:"Symptom or error text to look up"`
	Threshold  *float64 `json:"threshold,omitempty" jsonschema:"Minimum score between 0 and 1; omit for the configured default"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"Maximum results to return (default from config)"`
}

func (q queryInput) options() (string, search.Options, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return "", search.Options{}, invalid("query is required")
	}
	if t := q.Threshold; t != nil && (math.IsNaN(*t) || *t < 0 || *t > 1) {
		return "", search.Options{}, invalid("threshold must be between 0 and 1")
	}
	if q.MaxResults < 0 {
		return "", search.Options{}, invalid("max_results must not be negative")
	}
	return query, search.Options{Threshold: q.Threshold, MaxResults: q.MaxResults}, nil
}

type searchOutput struct {
	Query          string           `json:"query" jsonschema:"Normalized query"`
	Keywords       []string         `json:"keywords" jsonschema:"Keywords extracted from the query"`
	Matches        []map[string]any `json:"matches" jsonschema:"Matching incidents, best first"`
	StrategyCounts map[string]int   `json:"strategy_counts" jsonschema:"Raw match count per strategy"`
	Speedup        int              `json:"speedup" jsonschema:"Number of strategies that matched"`
	TotalIncidents int              `json:"total_incidents" jsonschema:"Incidents searched"`
}

type matchPatternsOutput struct {
	Query         string           `json:"query" jsonschema:"Normalized query"`
	Keywords      []string         `json:"keywords" jsonschema:"Keywords extracted from the query"`
	Matches       []map[string]any `json:"matches" jsonschema:"Matching patterns, best first"`
	TotalPatterns int              `json:"total_patterns" jsonschema:"Patterns scored"`
}

type checkOutput struct {
	Query          string           `json:"query" jsonschema:"Normalized query"`
	Source         string           `json:"source" jsonschema:"patterns, incidents or none"`
	Patterns       []map[string]any `json:"patterns" jsonschema:"Matching patterns"`
	Incidents      []map[string]any `json:"incidents" jsonschema:"Matching incidents when no pattern matched"`
	PatternsFound  int              `json:"patterns_found" jsonschema:"Number of patterns returned"`
	IncidentsFound int              `json:"incidents_found" jsonschema:"Number of incidents returned"`
}

func (s *Server) search(ctx context.Context, args queryInput) (searchOutput, string, error) {
	query, opts, err := args.options()
	if err != nil {
		return searchOutput{}, "", err
	}
	res, err := s.svc.Search(ctx, query, opts)
	if err != nil {
		return searchOutput{}, "", fmt.Errorf("search failed: %w", err)
	}
	out := searchOutput{
		Query:          res.Query,
		Keywords:       nonNil(res.Keywords),
		Matches:        incidentMatches(res.Matches),
		StrategyCounts: make(map[string]int, len(res.StrategyCounts)),
		Speedup:        res.Speedup,
		TotalIncidents: res.TotalIncidents,
	}
	for k, v := range res.StrategyCounts {
		out.StrategyCounts[string(k)] = v
	}
	return out, fmt.Sprintf("Found %d of %d incidents", len(out.Matches), out.TotalIncidents), nil
}

func (s *Server) matchPatterns(ctx context.Context, args queryInput) (matchPatternsOutput, string, error) {
	query, opts, err := args.options()
	if err != nil {
		return matchPatternsOutput{}, "", err
	}
	res, err := s.svc.MatchPatterns(ctx, query, opts)
	if err != nil {
		return matchPatternsOutput{}, "", fmt.Errorf("pattern match failed: %w", err)
	}
	out := matchPatternsOutput{
		Query:         res.Query,
		Keywords:      nonNil(res.Keywords),
		Matches:       patternMatches(res.Matches),
		TotalPatterns: res.TotalPatterns,
	}
	return out, fmt.Sprintf("Found %d of %d patterns", len(out.Matches), out.TotalPatterns), nil
}

func (s *Server) check(ctx context.Context, args queryInput) (checkOutput, string, error) {
	query, opts, err := args.options()
	if err != nil {
		return checkOutput{}, "", err
	}
	res, err := s.svc.CheckMemory(ctx, query, opts)
	if err != nil {
		return checkOutput{}, "", fmt.Errorf("memory check failed: %w", err)
	}
	out := checkOutput{
		Query:          res.Query,
		Source:         string(res.Source),
		Patterns:       patternMatches(res.Patterns),
		Incidents:      incidentMatches(res.Incidents),
		PatternsFound:  res.PatternsFound,
		IncidentsFound: res.IncidentsFound,
	}
	var summary string
	switch res.Source {
	case search.SourcePatterns:
		summary = fmt.Sprintf("Found %d matching patterns", out.PatternsFound)
	case search.SourceIncidents:
		summary = fmt.Sprintf("No pattern matched; found %d similar incidents", out.IncidentsFound)
	default:
		summary = "Nothing in memory matches"
	}
	return out, summary, nil
}

func incidentMatches(matches []search.Match) []map[string]any {
	out := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		inc := m.Incident
		if inc == nil {
			continue
		}
		out = append(out, map[string]any{
			"incident_id":  inc.ID,
			"symptom":      inc.Symptom,
			"root_cause":   inc.RootCause.Description,
			"category":     inc.RootCause.Category,
			"fix":          inc.Fix.Approach,
			"verification": string(inc.Verification.Status),
			"tags":         nonNil(inc.Tags),
			"pattern_id":   inc.PatternID,
			"score":        m.Score,
			"strategy":     string(m.Strategy),
			"highlights":   nonNil(m.Highlights),
		})
	}
	return out
}

func patternMatches(matches []search.PatternMatch) []map[string]any {
	out := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		if m.Pattern == nil {
			continue
		}
		p := patternSummary(m.Pattern)
		p["score"] = m.Score
		p["signature_hits"] = nonNil(m.SignatureHits)
		p["tag_hits"] = nonNil(m.TagHits)
		out = append(out, p)
	}
	return out
}

func patternSummary(p *incident.Pattern) map[string]any {
	return map[string]any{
		"pattern_id":       p.ID,
		"name":             p.Name,
		"category":         p.Category,
		"description":      p.Description,
		"solution":         p.SolutionTemplate,
		"success_rate":     p.SuccessRate,
		"uses":             p.UsageHistory.TotalUses,
		"tags":             nonNil(p.Tags),
		"source_incidents": nonNil(p.SourceIncidents),
	}
}

// ===== PATTERN TOOLS =====

type extractInput struct {
	MinIncidents  int     `json:"min_incidents,omitempty" jsonschema:"Minimum cluster size (default from config)"`
	MinSimilarity float64 `json:"min_similarity,omitempty" jsonschema:"Minimum commonality score between 0 and 1 (default from config)"`
	AutoStore     bool    `json:"auto_store,omitempty" jsonschema:"Persist new patterns and tag their incidents; otherwise a dry run"`
}

type extractOutput struct {
	Patterns   []map[string]any `json:"patterns" jsonschema:"Patterns synthesized by this run"`
	Skipped    []map[string]any `json:"skipped" jsonschema:"Categories that did not qualify and why"`
	Categories int              `json:"categories" jsonschema:"Categories considered"`
	Stored     bool             `json:"stored" jsonschema:"Whether patterns were persisted"`
}

func (s *Server) extractPatterns(ctx context.Context, args extractInput) (extractOutput, string, error) {
	if args.MinIncidents < 0 {
		return extractOutput{}, "", invalid("min_incidents must not be negative")
	}
	if args.MinSimilarity < 0 || args.MinSimilarity > 1 {
		return extractOutput{}, "", invalid("min_similarity must be between 0 and 1")
	}
	res, err := s.svc.ExtractPatterns(ctx, patterns.ExtractOptions{
		MinIncidents:  args.MinIncidents,
		MinSimilarity: args.MinSimilarity,
		AutoStore:     args.AutoStore,
	})
	if res == nil {
		return extractOutput{}, "", fmt.Errorf("pattern extraction failed: %w", err)
	}

	out := extractOutput{
		Patterns:   make([]map[string]any, 0, len(res.Patterns)),
		Skipped:    make([]map[string]any, 0, len(res.Skipped)),
		Categories: res.Categories,
		Stored:     res.Stored,
	}
	for _, p := range res.Patterns {
		out.Patterns = append(out.Patterns, patternSummary(p))
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, map[string]any{
			"category": sk.Category,
			"size":     sk.Size,
			"score":    sk.Score,
			"reason":   sk.Reason,
		})
	}
	summary := fmt.Sprintf("Extracted %d patterns from %d categories", len(out.Patterns), out.Categories)
	if err != nil {
		// Patterns were written but some incidents could not be tagged.
		s.logger.Warn("pattern extraction incomplete", zap.Error(err))
		summary += "; warning: " + err.Error()
	}
	return out, summary, nil
}

// ===== INCIDENT TOOLS =====

type storeInput struct {
	Symptom      string   `json:"symptom" jsonschema:"What was observed"`
	RootCause    string   `json:"root_cause,omitempty" jsonschema:"Why it happened"`
	Category     string   `json:"category,omitempty" jsonschema:"Root cause category such as database or react-hooks"`
	Confidence   float64  `json:"confidence,omitempty" jsonschema:"Confidence in the root cause between 0 and 1"`
	Fix          string   `json:"fix,omitempty" jsonschema:"How it was fixed"`
	Verification string   `json:"verification,omitempty" jsonschema:"verified, partial or unverified"`
	Tags         []string `json:"tags,omitempty" jsonschema:"Free-form tags"`
	FilesChanged []string `json:"files_changed,omitempty" jsonschema:"Files touched by the fix"`
	Agent        string   `json:"agent,omitempty" jsonschema:"Agent recording the incident"`
}

type storeOutput struct {
	IncidentID   string  `json:"incident_id" jsonschema:"Assigned incident id"`
	QualityScore float64 `json:"quality_score" jsonschema:"Completeness of the record between 0 and 1"`
	PatternID    string  `json:"pattern_id,omitempty" jsonschema:"Pattern synthesized because this incident completed a cluster"`
	Warning      string  `json:"warning,omitempty" jsonschema:"Non-fatal auto-extraction failure"`
}

func (s *Server) storeIncident(ctx context.Context, args storeInput) (storeOutput, string, error) {
	agent := strings.TrimSpace(args.Agent)
	if agent == "" {
		agent = s.agent
	}
	ctx = logging.WithAgent(ctx, agent)

	res, err := s.svc.StoreIncident(ctx, &incident.Incident{
		Agent:   agent,
		Symptom: args.Symptom,
		RootCause: incident.RootCause{
			Description: args.RootCause,
			Category:    args.Category,
			Confidence:  args.Confidence,
		},
		Fix:          incident.Fix{Approach: args.Fix},
		Verification: incident.Verification{Status: incident.VerificationStatus(strings.ToLower(args.Verification))},
		Tags:         args.Tags,
		FilesChanged: args.FilesChanged,
	})
	if err != nil {
		return storeOutput{}, "", fmt.Errorf("store incident failed: %w", err)
	}

	out := storeOutput{
		IncidentID:   res.Incident.ID,
		QualityScore: res.Incident.Completeness.QualityScore,
		Warning:      res.Warning,
	}
	summary := "Incident stored: " + out.IncidentID
	if res.Pattern != nil {
		out.PatternID = res.Pattern.ID
		summary += "; new pattern " + out.PatternID
	}
	return out, summary, nil
}

// ===== AGGREGATION TOOLS =====

type aggregateInput struct {
	Query       string                      `json:"query,omitempty" jsonschema:"Also search incidents and patterns for this text"`
	Assessments []aggregate.Assessment      `json:"assessments,omitempty" jsonschema:"Live diagnoses from domain analyzers"`
	Incidents   []aggregate.CompactIncident `json:"incidents,omitempty" jsonschema:"Compact incident summaries"`
	Patterns    []aggregate.CompactPattern  `json:"patterns,omitempty" jsonschema:"Compact pattern summaries"`
	MinScore    *float64                    `json:"min_score,omitempty" jsonschema:"Drop items scoring below this; omit for the configured default"`
	MaxResults  int                         `json:"max_results,omitempty" jsonschema:"Maximum findings to return (default from config)"`
}

type aggregateOutput struct {
	Items       []map[string]any `json:"items" jsonschema:"Findings, best first"`
	Confidence  float64          `json:"confidence" jsonschema:"Mean score of the findings"`
	Domains     []string         `json:"domains" jsonschema:"Domains covered"`
	Actions     []string         `json:"actions" jsonschema:"Suggested actions, deduplicated"`
	TotalInputs int              `json:"total_inputs" jsonschema:"Items scored"`
	BelowMin    int              `json:"below_min" jsonschema:"Items dropped below the minimum score"`
	Duplicates  int              `json:"duplicates" jsonschema:"Near-duplicates removed"`
}

func (s *Server) aggregate(ctx context.Context, args aggregateInput) (aggregateOutput, string, error) {
	if ms := args.MinScore; ms != nil && (math.IsNaN(*ms) || *ms < 0 || *ms > 1) {
		return aggregateOutput{}, "", invalid("min_score must be between 0 and 1")
	}
	if args.MaxResults < 0 {
		return aggregateOutput{}, "", invalid("max_results must not be negative")
	}
	req := &memory.AggregateRequest{
		Query:       strings.TrimSpace(args.Query),
		Assessments: args.Assessments,
		Incidents:   args.Incidents,
		Patterns:    args.Patterns,
	}
	if args.MinScore != nil || args.MaxResults > 0 {
		req.Config = &aggregate.Config{MinScore: args.MinScore, MaxResults: args.MaxResults}
	}

	res, err := s.svc.Aggregate(ctx, req)
	if err != nil {
		return aggregateOutput{}, "", fmt.Errorf("aggregate failed: %w", err)
	}
	out := aggregateOutput{
		Items:       make([]map[string]any, 0, len(res.Items)),
		Confidence:  res.Confidence,
		Domains:     nonNil(res.Domains),
		Actions:     nonNil(res.Actions),
		TotalInputs: res.TotalInputs,
		BelowMin:    res.BelowMin,
		Duplicates:  res.Duplicates,
	}
	for _, it := range res.Items {
		out.Items = append(out.Items, map[string]any{
			"type":    string(it.Type),
			"id":      it.ID,
			"score":   it.Score,
			"domain":  it.Domain,
			"summary": it.Summary,
			"actions": nonNil(it.Actions),
			"tags":    nonNil(it.Tags),
		})
	}
	return out, fmt.Sprintf("%d findings, confidence %.2f", len(out.Items), out.Confidence), nil
}

type statsInput struct{}

type statsOutput struct {
	Incidents   int            `json:"incidents" jsonschema:"Stored incidents"`
	Patterns    int            `json:"patterns" jsonschema:"Stored patterns"`
	Patternized int            `json:"patternized" jsonschema:"Incidents consumed by a pattern"`
	Verified    int            `json:"verified" jsonschema:"Verified incidents"`
	Categories  map[string]int `json:"categories" jsonschema:"Incidents per category"`
	MeanQuality float64        `json:"mean_quality" jsonschema:"Mean completeness score"`
}

func (s *Server) stats(ctx context.Context, _ statsInput) (statsOutput, string, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return statsOutput{}, "", fmt.Errorf("stats failed: %w", err)
	}
	out := statsOutput{
		Incidents:   st.Incidents,
		Patterns:    st.Patterns,
		Patternized: st.Patternized,
		Verified:    st.Verified,
		Categories:  st.Categories,
		MeanQuality: st.MeanQuality,
	}
	if out.Categories == nil {
		out.Categories = map[string]int{}
	}
	return out, fmt.Sprintf("%d incidents, %d patterns", out.Incidents, out.Patterns), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
