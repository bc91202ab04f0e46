package patterns

import (
	"strings"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

// Commonality scoring constants.
const (
	tagWeight        = 0.7
	fileOverlapBonus = 0.15
	denseBonus       = 0.15
	moderateBonus    = 0.10
	denseSize        = 5
	moderateSize     = 3
)

// Commonality summarizes what a cluster of incidents has in common.
type Commonality struct {
	// Score is in [0, 1].
	Score float64 `json:"score"`

	// CommonTags appear in at least 60% of the members, in first-seen order.
	CommonTags []string `json:"common_tags"`

	// CommonFiles were touched by at least two members.
	CommonFiles []string `json:"common_files"`

	// DistinctTags is the number of different tags across the cluster.
	DistinctTags int `json:"distinct_tags"`
}

// Analyze scores a cluster by tag similarity, file overlap and size. Tags are
// compared lower-cased and counted at most once per member.
func Analyze(cluster []*incident.Incident) Commonality {
	c := Commonality{CommonTags: []string{}, CommonFiles: []string{}}
	n := len(cluster)
	if n == 0 {
		return c
	}

	tagCounts, tagOrder := countPerMember(cluster, func(inc *incident.Incident) []string {
		out := make([]string, 0, len(inc.Tags))
		for _, t := range inc.Tags {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				out = append(out, t)
			}
		}
		return out
	})
	fileCounts, fileOrder := countPerMember(cluster, filesOf)

	need := tagQuorum(n)
	for _, t := range tagOrder {
		if tagCounts[t] >= need {
			c.CommonTags = append(c.CommonTags, t)
		}
	}
	for _, f := range fileOrder {
		if fileCounts[f] >= 2 {
			c.CommonFiles = append(c.CommonFiles, f)
		}
	}
	c.DistinctTags = len(tagOrder)

	denom := c.DistinctTags
	if denom < 1 {
		denom = 1
	}
	score := float64(len(c.CommonTags)) / float64(denom) * tagWeight
	if len(c.CommonFiles) > 0 {
		score += fileOverlapBonus
	}
	switch {
	case n >= denseSize:
		score += denseBonus
	case n >= moderateSize:
		score += moderateBonus
	}
	if score > 1 {
		score = 1
	}
	c.Score = score
	return c
}

// tagQuorum is ceil(0.6 * n) computed in integers.
func tagQuorum(n int) int {
	return (6*n + 9) / 10
}

// filesOf returns every path an incident touched.
func filesOf(inc *incident.Incident) []string {
	out := make([]string, 0, len(inc.FilesChanged)+len(inc.Fix.Changes))
	for _, f := range inc.FilesChanged {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	for _, ch := range inc.Fix.Changes {
		if f := strings.TrimSpace(ch.File); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// countPerMember counts how many members contain each value, and returns the
// values in order of first appearance.
func countPerMember(cluster []*incident.Incident, values func(*incident.Incident) []string) (map[string]int, []string) {
	counts := make(map[string]int)
	var order []string
	for _, inc := range cluster {
		seen := make(map[string]struct{})
		for _, v := range values(inc) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			if _, known := counts[v]; !known {
				order = append(order, v)
			}
			counts[v]++
		}
	}
	return counts, order
}
