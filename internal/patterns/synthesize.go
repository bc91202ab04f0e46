package patterns

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/keywords"
)

const (
	maxSignature       = 10
	maxRecentIncidents = 5
	minSignatureWord   = 4
	lowQuality         = 0.8
	staleAfter         = 90 * 24 * time.Hour
	unknownAgent       = "unknown"
)

// Synthesize builds a pattern from a qualifying cluster. It is a pure
// function of its inputs; callers decide whether to persist the result.
func Synthesize(category string, cluster []*incident.Incident, c Commonality, now time.Time) *incident.Pattern {
	n := len(cluster)
	verified := 0
	for _, inc := range cluster {
		if inc.Verified() {
			verified++
		}
	}

	p := &incident.Pattern{
		ID:                 incident.PatternID(category, incident.AutoPatternName),
		Name:               fmt.Sprintf("Auto-extracted %s pattern", category),
		Description:        describe(category, n, c),
		Category:           category,
		DetectionSignature: detectionSignature(category, cluster),
		SolutionTemplate:   solutionTemplate(cluster),
		CodeExample:        codeExample(cluster),
		Tags:               append([]string{}, c.CommonTags...),
		SourceIncidents:    make([]string, 0, n),
		CreatedAt:          now.UTC(),
	}
	if n > 0 {
		p.SuccessRate = float64(verified) / float64(n)
	}

	byAgent := make(map[string]int)
	for _, inc := range cluster {
		p.SourceIncidents = append(p.SourceIncidents, inc.ID)
		agent := inc.Agent
		if agent == "" {
			agent = unknownAgent
		}
		byAgent[agent]++
		if inc.Timestamp.After(p.LastUsed) {
			p.LastUsed = inc.Timestamp
		}
	}
	p.UsageHistory = incident.UsageHistory{
		TotalUses:       n,
		SuccessfulUses:  verified,
		ByAgent:         byAgent,
		RecentIncidents: recentIncidents(cluster),
	}
	p.Caveats = caveats(cluster, verified, now)
	return p
}

func describe(category string, n int, c Commonality) string {
	desc := fmt.Sprintf("Recurring %s issue observed in %d incidents.", category, n)
	if len(c.CommonTags) > 0 {
		desc += " Common tags: " + strings.Join(c.CommonTags, ", ") + "."
	}
	if len(c.CommonFiles) > 0 {
		desc += " Frequently changed files: " + strings.Join(c.CommonFiles, ", ") + "."
	}
	return desc
}

// detectionSignature collects symptom words, tags and the category in order
// of first occurrence, capped at maxSignature entries.
func detectionSignature(category string, cluster []*incident.Incident) []string {
	seen := make(map[string]struct{})
	sig := make([]string, 0, maxSignature)
	add := func(s string) {
		if s == "" || len(sig) >= maxSignature {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		sig = append(sig, s)
	}

	cat := strings.ToLower(strings.TrimSpace(category))
	for _, inc := range cluster {
		for _, w := range keywords.Extract(inc.Symptom) {
			if len(w) >= minSignatureWord {
				add(w)
			}
		}
		for _, t := range inc.Tags {
			add(strings.ToLower(strings.TrimSpace(t)))
		}
		add(cat)
	}
	return sig
}

// solutionTemplate wraps the longest fix approach, used as a proxy for the
// most detailed one.
func solutionTemplate(cluster []*incident.Incident) string {
	best := ""
	for _, inc := range cluster {
		if a := strings.TrimSpace(inc.Fix.Approach); len(a) > len(best) {
			best = a
		}
	}
	if best == "" {
		best = "No fix approach was recorded for this cluster."
	}
	return fmt.Sprintf("%s\n\nVerify the fix against the original symptom and run the regression tests before closing.\nBased on %d resolved incidents.", best, len(cluster))
}

func codeExample(cluster []*incident.Incident) string {
	var best *incident.Incident
	for _, inc := range cluster {
		if strings.TrimSpace(inc.RootCause.CodeSnippet) == "" {
			continue
		}
		if best == nil || inc.RootCause.Confidence > best.RootCause.Confidence {
			best = inc
		}
	}
	if best == nil {
		return ""
	}
	return best.RootCause.CodeSnippet
}

// recentIncidents returns the ids of the newest members, oldest first.
func recentIncidents(cluster []*incident.Incident) []string {
	sorted := append([]*incident.Incident(nil), cluster...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) > maxRecentIncidents {
		sorted = sorted[len(sorted)-maxRecentIncidents:]
	}
	ids := make([]string, len(sorted))
	for i, inc := range sorted {
		ids[i] = inc.ID
	}
	return ids
}

func caveats(cluster []*incident.Incident, verified int, now time.Time) []string {
	var out []string
	n := len(cluster)
	if n == 0 {
		return out
	}
	if verified < n {
		out = append(out, fmt.Sprintf("%d of %d source incidents were not fully verified", n-verified, n))
	}

	low := 0
	oldest := cluster[0].Timestamp
	for _, inc := range cluster {
		if inc.Completeness.QualityScore < lowQuality {
			low++
		}
		if inc.Timestamp.Before(oldest) {
			oldest = inc.Timestamp
		}
	}
	if low > 0 {
		out = append(out, fmt.Sprintf("%d source incidents have a completeness score below %.2f", low, lowQuality))
	}
	if !oldest.IsZero() && now.Sub(oldest) > staleAfter {
		days := int(now.Sub(oldest).Hours() / 24)
		out = append(out, fmt.Sprintf("oldest source incident is %d days old; confirm the fix still applies", days))
	}
	return out
}
