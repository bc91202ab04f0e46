package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func TestRecency(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1},
		{24 * time.Hour, 1},
		{30 * 24 * time.Hour, 0.1},
		{400 * 24 * time.Hour, 0.1},
		{(24 + 29*24/2) * time.Hour, 0.55},
		{-time.Hour, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Recency(now.Add(-tt.age), now), 1e-9, "age %v", tt.age)
	}
}

func TestAggregate_VerifiedRecentOutranksStale(t *testing.T) {
	verified := CompactIncident{ID: "INC_A", Symptom: "login fails after deploy", Category: "auth", Confidence: Float(0.8), Verified: "V", Timestamp: now.UnixMilli(), Similarity: Float(0.7)}
	stale := CompactIncident{ID: "INC_B", Symptom: "cache eviction storm", Category: "perf", Confidence: Float(0.8), Verified: "U", Timestamp: now.Add(-40 * 24 * time.Hour).UnixMilli(), Similarity: Float(0.7)}

	res := Aggregate(nil, []CompactIncident{stale, verified}, nil, Config{}, now)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "INC_A", res.Items[0].ID)
	assert.Greater(t, res.Items[0].Score, res.Items[1].Score)
	assert.Equal(t, []string{"auth", "perf"}, res.Domains)
}

func TestAggregate_ScoreBounds(t *testing.T) {
	res := Aggregate(
		[]Assessment{
			{Domain: "db", Confidence: 5, ProbableCauses: make([]string, 50)},
			{Domain: "x", Confidence: math.NaN()},
			{},
		},
		[]CompactIncident{{}, {Confidence: Float(-3), Similarity: Float(9), Verified: "V", Timestamp: now.UnixMilli()}},
		[]CompactPattern{{}, {Uses: 100, Match: Float(2), LastUsed: now.UnixMilli()}},
		Config{MinScore: Float(1e-9), DedupThreshold: 2},
		now,
	)
	for _, it := range res.Items {
		assert.False(t, math.IsNaN(it.Score))
		assert.GreaterOrEqual(t, it.Score, 0.0, it.ID)
		assert.LessOrEqual(t, it.Score, 1.0, it.ID)
	}
	assert.False(t, math.IsNaN(res.Confidence))
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil, nil, nil, Config{}, now)
	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.Zero(t, res.Confidence)
}

func TestAggregate_FiltersDedupesAndCaps(t *testing.T) {
	var incs []CompactIncident
	for i := 0; i < 20; i++ {
		incs = append(incs, CompactIncident{
			ID:        string(rune('a' + i)),
			Symptom:   "unique symptom " + string(rune('a'+i)) + " words",
			Category:  string(rune('a' + i)),
			Verified:  "V",
			Timestamp: now.UnixMilli(),
			Fix:       "fix " + string(rune('a'+i)),
		})
	}
	incs = append(incs, CompactIncident{ID: "low", Symptom: "old unverified", Verified: "U", Timestamp: now.Add(-90 * 24 * time.Hour).UnixMilli(), Confidence: Float(0.01), Similarity: Float(0.01)})

	res := Aggregate(nil, incs, nil, Config{MinScore: Float(0.5)}, now)

	assert.Len(t, res.Items, 10)
	assert.Equal(t, 1, res.BelowMin)
	assert.Len(t, res.Actions, 5)
	assert.Equal(t, 21, res.TotalInputs)
}

func TestAggregate_DuplicatesCollapsed(t *testing.T) {
	a := CompactIncident{ID: "1", Symptom: "database connection pool exhausted", Category: "database", Tags: []string{"db", "pool"}, Verified: "V", Similarity: Float(0.9), Fix: "raise pool size"}
	b := CompactIncident{ID: "2", Symptom: "Database connection pool exhausted!", Category: "database", Tags: []string{"DB", "pool"}, Verified: "P", Similarity: Float(0.9), Fix: "Raise pool size"}
	c := CompactIncident{ID: "3", Symptom: "database connection pool exhausted", Category: "other", Tags: []string{"db", "pool"}, Verified: "P", Similarity: Float(0.9)}

	res := Aggregate(nil, []CompactIncident{b, a, c}, nil, Config{}, now)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "1", res.Items[0].ID, "higher scored duplicate survives")
	assert.Equal(t, "3", res.Items[1].ID, "different domain is not a duplicate")
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []string{"raise pool size"}, res.Actions)
}

func TestDeduplicateIdempotent(t *testing.T) {
	items := []ScoredItem{
		{Type: TypeIncident, ID: "1", Domain: "d", Summary: "alpha beta gamma", Tags: []string{"x"}},
		{Type: TypeIncident, ID: "2", Domain: "d", Summary: "alpha beta gamma", Tags: []string{"x"}},
		{Type: TypeIncident, ID: "3", Domain: "d", Summary: "delta epsilon", Tags: []string{"y"}},
		{Type: TypePattern, ID: "4", Domain: "d", Summary: "alpha beta gamma", Tags: []string{"x"}},
	}
	once := Deduplicate(items, 0.8)
	twice := Deduplicate(once, 0.8)

	assert.Equal(t, once, twice)
	assert.Len(t, once, 3)
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard(nil, nil))
	assert.Equal(t, 0.0, Jaccard([]string{"a"}, nil))
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Equal(t, 1.0, Jaccard([]string{"a", "a"}, []string{"a"}))
}

func TestScoreAssessment(t *testing.T) {
	strong := scoreAssessment(Assessment{Domain: "db", Confidence: 0.9, ProbableCauses: []string{"a", "b"}, RelatedIncidents: []string{"INC_1"}}, 0)
	weak := scoreAssessment(Assessment{Domain: "db", Confidence: 0.4}, 1)

	// 0.35*0.6 + 0.25*0.9 + 0.15 + 0.25*0.9, boosted
	assert.InDelta(t, math.Min(1, (0.21+0.225+0.15+0.225)*1.2), strong.Score, 1e-9)
	// 0 + 0.25*0.4 + 0.15 + 0.25*0.24
	assert.InDelta(t, 0.1+0.15+0.06, weak.Score, 1e-9)
	assert.Equal(t, "assessment:db:1", weak.ID)
}

func TestScorePattern(t *testing.T) {
	many := scorePattern(CompactPattern{ID: "p1", Uses: 3, Match: Float(0.8), Solution: "do the thing\nthen verify"}, now)
	few := scorePattern(CompactPattern{ID: "p2", Uses: 1}, now)

	assert.Greater(t, many.Score, few.Score)
	assert.Equal(t, []string{"do the thing"}, many.Actions)
	// 0.35*0.5 + 0.25*0.8 + 0.15*0.5 + 0.25*0.5
	assert.InDelta(t, 0.175+0.2+0.075+0.125, few.Score, 1e-9)
}

func TestFromIncident(t *testing.T) {
	inc := &incident.Incident{
		ID:              "INC_20261016_120000_abcde",
		Timestamp:       now,
		Symptom:         "s",
		RootCause:       incident.RootCause{Description: "rc", Category: "api", Confidence: 0.7},
		Fix:             incident.Fix{Approach: "fx"},
		Verification:    incident.Verification{Status: incident.StatusPartial},
		SimilarityScore: 0.9,
	}
	ci := FromIncident(inc)
	assert.Equal(t, "P", ci.Verified)
	assert.Equal(t, now.UnixMilli(), ci.Timestamp)
	require.NotNil(t, ci.Similarity)
	assert.Equal(t, 0.9, *ci.Similarity)
	require.NotNil(t, ci.Confidence)
	assert.Equal(t, 0.7, *ci.Confidence)
	assert.Equal(t, "api", ci.Category)

	p := FromPattern(&incident.Pattern{ID: "PTN_X", UsageHistory: incident.UsageHistory{TotalUses: 4}}, 0.6)
	assert.Equal(t, 4, p.Uses)
	require.NotNil(t, p.Match)
	assert.Equal(t, 0.6, *p.Match)
	assert.Zero(t, p.LastUsed)

	inc.SimilarityScore = 0
	assert.Nil(t, FromIncident(inc).Similarity, "no search score")
}

func TestScoreIncident_ConfidenceMonotonic(t *testing.T) {
	base := CompactIncident{ID: "INC_A", Symptom: "s", Category: "db", Verified: "U", Similarity: Float(0.6)}

	prev := -1.0
	for _, conf := range []float64{0, 0.1, 0.4, 0.5, 0.9, 1} {
		ci := base
		ci.Confidence = Float(conf)
		score := scoreIncident(ci, now).Score
		assert.Greater(t, score, prev, "confidence %v", conf)
		prev = score
	}

	// 0.35*0.6 + 0.25*conf + 0.15*0.5 + 0.25*0.3
	zero := base
	zero.Confidence = Float(0)
	assert.InDelta(t, 0.21+0.075+0.075, scoreIncident(zero, now).Score, 1e-9)

	unknown := scoreIncident(base, now).Score
	half := base
	half.Confidence = Float(0.5)
	assert.InDelta(t, scoreIncident(half, now).Score, unknown, 1e-9, "unknown confidence is neutral")
}

func TestScore_ZeroMatchIsNotUnknown(t *testing.T) {
	ci := CompactIncident{ID: "INC_A", Symptom: "s", Verified: "U", Confidence: Float(0.5)}
	unknown := scoreIncident(ci, now).Score
	ci.Similarity = Float(0)
	assert.Less(t, scoreIncident(ci, now).Score, unknown)

	cp := CompactPattern{ID: "PTN_A", Uses: 1}
	unknown = scorePattern(cp, now).Score
	cp.Match = Float(0)
	assert.Less(t, scorePattern(cp, now).Score, unknown)
}

func TestAggregate_ZeroMinScoreKeepsEverything(t *testing.T) {
	low := CompactIncident{ID: "low", Symptom: "old unverified", Verified: "U", Timestamp: now.Add(-90 * 24 * time.Hour).UnixMilli(), Confidence: Float(0), Similarity: Float(0)}

	res := Aggregate(nil, []CompactIncident{low}, nil, Config{MinScore: Float(0)}, now)
	require.Len(t, res.Items, 1)
	assert.Zero(t, res.BelowMin)

	res = Aggregate(nil, []CompactIncident{low}, nil, Config{}, now)
	assert.Empty(t, res.Items, "default min score applies when unset")
	assert.Equal(t, 1, res.BelowMin)
}
