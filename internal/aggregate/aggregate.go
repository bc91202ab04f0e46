package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/debugmem/internal/keywords"
)

// Dedup blend weights.
const (
	tagSimilarityWeight     = 0.4
	summarySimilarityWeight = 0.6
)

// Aggregate scores every input, drops items below cfg.MinScore, sorts by
// score, removes near-duplicates and keeps the top cfg.MaxResults.
func Aggregate(assessments []Assessment, incidents []CompactIncident, patterns []CompactPattern, cfg Config, now time.Time) *Result {
	cfg = cfg.withDefaults()

	items := make([]ScoredItem, 0, len(assessments)+len(incidents)+len(patterns))
	for i, a := range assessments {
		items = append(items, scoreAssessment(a, i))
	}
	for _, ci := range incidents {
		items = append(items, scoreIncident(ci, now))
	}
	for _, cp := range patterns {
		items = append(items, scorePattern(cp, now))
	}

	res := &Result{
		Items:       []ScoredItem{},
		Domains:     []string{},
		Actions:     []string{},
		TotalInputs: len(items),
	}

	minScore := cfg.minScore()
	kept := items[:0]
	for _, it := range items {
		if it.Score >= minScore {
			kept = append(kept, it)
		}
	}
	res.BelowMin = len(items) - len(kept)

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	deduped := Deduplicate(kept, cfg.DedupThreshold)
	res.Duplicates = len(kept) - len(deduped)

	if len(deduped) > cfg.MaxResults {
		deduped = deduped[:cfg.MaxResults]
	}
	res.Items = deduped

	sum := 0.0
	seenDomain := make(map[string]struct{})
	seenAction := make(map[string]struct{})
	for _, it := range deduped {
		sum += it.Score
		if it.Domain != "" {
			if _, ok := seenDomain[it.Domain]; !ok {
				seenDomain[it.Domain] = struct{}{}
				res.Domains = append(res.Domains, it.Domain)
			}
		}
		for _, a := range it.Actions {
			key := strings.ToLower(strings.TrimSpace(a))
			if key == "" || len(res.Actions) >= cfg.MaxActions {
				continue
			}
			if _, ok := seenAction[key]; ok {
				continue
			}
			seenAction[key] = struct{}{}
			res.Actions = append(res.Actions, strings.TrimSpace(a))
		}
	}
	if len(deduped) > 0 {
		res.Confidence = clamp01(sum / float64(len(deduped)))
	}
	return res
}

// Deduplicate keeps the first of any two items of the same type and domain
// whose blended tag and summary similarity exceeds threshold. Items are
// expected in descending score order.
func Deduplicate(items []ScoredItem, threshold float64) []ScoredItem {
	out := make([]ScoredItem, 0, len(items))
	for _, it := range items {
		dup := false
		for _, kept := range out {
			if IsDuplicate(kept, it, threshold) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, it)
		}
	}
	return out
}

// IsDuplicate reports whether a and b describe the same thing.
func IsDuplicate(a, b ScoredItem, threshold float64) bool {
	if a.Type != b.Type || a.Domain != b.Domain {
		return false
	}
	return Similarity(a, b) > threshold
}

// Similarity blends tag-set and summary-word Jaccard similarity.
func Similarity(a, b ScoredItem) float64 {
	tags := Jaccard(normalize(a.Tags), normalize(b.Tags))
	words := Jaccard(keywords.Extract(a.Summary), keywords.Extract(b.Summary))
	return tagSimilarityWeight*tags + summarySimilarityWeight*words
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets are identical.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		setB[v] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func normalize(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
