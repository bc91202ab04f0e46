package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/debugmem/internal/aggregate"
	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/search"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("45"))

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)
)

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit writes v as JSON or through the text renderer.
func emit[T any](w io.Writer, format string, v T, text func(io.Writer, T)) error {
	if format == formatJSON {
		return outputJSON(w, v)
	}
	text(w, v)
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func header(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf(format, args...)))
}

func score(v float64) string {
	return scoreStyle.Render(fmt.Sprintf("%.2f", v))
}

func renderSearch(w io.Writer, res *search.Result) {
	header(w, "%d match(es) for %q", len(res.Matches), res.Query)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("keywords: %s | %d incidents | %d strategies matched | %s",
		strings.Join(res.Keywords, ", "), res.TotalIncidents, res.Speedup, res.Duration)))
	for _, m := range res.Matches {
		renderIncidentLine(w, m.Incident, m.Score, string(m.Strategy))
	}
}

func renderIncidentLine(w io.Writer, inc *incident.Incident, s float64, via string) {
	fmt.Fprintf(w, "%s  %s  %s\n", score(s), idStyle.Render(inc.ID), truncate(inc.Symptom, 70))
	detail := []string{"category: " + inc.RootCause.Category}
	if via != "" {
		detail = append(detail, "via "+via)
	}
	if inc.Fix.Approach != "" {
		detail = append(detail, "fix: "+truncate(inc.Fix.Approach, 60))
	}
	fmt.Fprintln(w, "      "+dimStyle.Render(strings.Join(detail, " | ")))
}

func renderPatternLine(w io.Writer, m search.PatternMatch) {
	p := m.Pattern
	fmt.Fprintf(w, "%s  %s  %s\n", score(m.Score), idStyle.Render(p.ID), p.Name)
	fmt.Fprintln(w, "      "+dimStyle.Render(fmt.Sprintf("success %.0f%% | %d sources | %s",
		p.SuccessRate*100, len(p.SourceIncidents), truncate(p.SolutionTemplate, 60))))
}

func renderPatternMatches(w io.Writer, res *search.PatternResult) {
	header(w, "%d pattern(s) for %q", len(res.Matches), res.Query)
	for _, m := range res.Matches {
		renderPatternLine(w, m)
	}
}

func renderCheck(w io.Writer, res *search.CheckResult) {
	switch res.Source {
	case search.SourcePatterns:
		header(w, "Known pattern(s) for %q", res.Query)
		for _, m := range res.Patterns {
			renderPatternLine(w, m)
		}
	case search.SourceIncidents:
		header(w, "Similar incident(s) for %q", res.Query)
		for _, m := range res.Incidents {
			renderIncidentLine(w, m.Incident, m.Score, string(m.Strategy))
		}
	default:
		fmt.Fprintln(w, warnStyle.Render("Nothing in memory matches "+fmt.Sprintf("%q", res.Query)))
	}
}

func renderExtract(w io.Writer, res *patterns.ExtractResult) {
	verb := "would create"
	if res.Stored {
		verb = "created"
	}
	header(w, "%s %d pattern(s) from %d categor(ies)", verb, len(res.Patterns), res.Categories)
	for _, p := range res.Patterns {
		fmt.Fprintf(w, "%s  %s (%d incidents)\n", idStyle.Render(p.ID), p.Name, len(p.SourceIncidents))
	}
	for _, s := range res.Skipped {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("skipped %s (%d): %s", s.Category, s.Size, s.Reason)))
	}
}

func renderStore(w io.Writer, res *memory.StoreResult) {
	fmt.Fprintf(w, "%s %s (quality %.2f)\n", goodStyle.Render("stored"), idStyle.Render(res.Incident.ID),
		res.Incident.Completeness.QualityScore)
	if res.Pattern != nil {
		fmt.Fprintf(w, "%s %s from %d incidents\n", goodStyle.Render("pattern"), idStyle.Render(res.Pattern.ID),
			len(res.Pattern.SourceIncidents))
	}
	if res.Warning != "" {
		fmt.Fprintln(w, warnStyle.Render("warning: "+res.Warning))
	}
}

func renderStats(w io.Writer, st *memory.Stats) {
	header(w, "Memory")
	fmt.Fprintf(w, "incidents    %d (%d verified, %d patternized)\n", st.Incidents, st.Verified, st.Patternized)
	fmt.Fprintf(w, "patterns     %d\n", st.Patterns)
	fmt.Fprintf(w, "mean quality %.2f\n", st.MeanQuality)
	if len(st.Categories) == 0 {
		return
	}
	header(w, "Categories")
	for _, c := range st.SortedCategories() {
		fmt.Fprintf(w, "%-24s %d\n", c, st.Categories[c])
	}
}

func renderAggregate(w io.Writer, res *aggregate.Result) {
	header(w, "%d finding(s), confidence %.2f", len(res.Items), res.Confidence)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d inputs | %d below minimum | %d duplicates",
		res.TotalInputs, res.BelowMin, res.Duplicates)))
	for _, it := range res.Items {
		fmt.Fprintf(w, "%s  %-10s %s  %s\n", score(it.Score), it.Type, idStyle.Render(it.ID), truncate(it.Summary, 60))
	}
	if len(res.Domains) > 0 {
		fmt.Fprintln(w, dimStyle.Render("domains: "+strings.Join(res.Domains, ", ")))
	}
	if len(res.Actions) > 0 {
		header(w, "Next actions")
		for i, a := range res.Actions {
			fmt.Fprintf(w, "%d. %s\n", i+1, a)
		}
	}
}
