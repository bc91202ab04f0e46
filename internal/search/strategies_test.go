package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

func TestExact(t *testing.T) {
	corpus := []*incident.Incident{
		newIncident("Sentry Logger not working", "config"),
		newIncident("", "config"),
		nil,
		newIncident("logger works fine", "config"),
	}

	matches := Exact{}.Run(NewQuery("LOGGER NOT"), corpus)

	require.Len(t, matches, 1)
	assert.Equal(t, corpus[0].ID, matches[0].Incident.ID)
	assert.Equal(t, ExactScore, matches[0].Score)
	assert.Equal(t, []string{"Logger not"}, matches[0].Highlights)

	assert.Empty(t, Exact{}.Run(NewQuery("   "), corpus))
}

func TestExact_HighlightWidthChangingCase(t *testing.T) {
	tests := []struct {
		symptom string
		want    string
	}{
		{"İSTANBUL ẞ Timeout on GATEWAY", "Timeout on GATEWAY"},
		// Ⱥ grows and the Kelvin sign shrinks when lower-cased, so the
		// folded symptom has the same byte length with shifted offsets.
		{"ȺȺ Timeout on GATEWAY \u212a", "Timeout on GATEWAY"},
		{"timeout on gateway İ", "timeout on gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.symptom, func(t *testing.T) {
			matches := Exact{}.Run(NewQuery("timeout on gateway"), []*incident.Incident{
				newIncident(tt.symptom, "network"),
			})
			require.Len(t, matches, 1)
			assert.Equal(t, []string{tt.want}, matches[0].Highlights)
		})
	}
}

func TestFoldedSpan(t *testing.T) {
	s := "ẞ Kİ"
	got, ok := foldedSpan(s, 3, 5)
	require.True(t, ok)
	assert.Equal(t, "Kİ", got)

	_, ok = foldedSpan(s, 1, 2)
	assert.False(t, ok, "offset inside a folded rune")
}

func TestTag(t *testing.T) {
	corpus := []*incident.Incident{
		newIncident("a", "x", "hooks"),
		newIncident("b", "x", "react"),
		newIncident("c", "x", "", "css"),
		newIncident("d", "x"),
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"hook problem", []string{corpus[0].ID}},
		{"reactjs app", []string{corpus[1].ID}},
		{"nothing relevant", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got []string
			for _, m := range (Tag{}).Run(NewQuery(tt.query), corpus) {
				assert.Equal(t, TagScore, m.Score)
				got = append(got, m.Incident.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFuzzy(t *testing.T) {
	typo := newIncident("websocket disconects on idle", "network")
	byCause := newIncident("unrelated symptom text", "network")
	byCause.RootCause.Description = "websocket disconnects on idle"
	blank := &incident.Incident{ID: "INC_20261001_000000_aaaaa"}
	far := newIncident("zzzz qqqq", "network")

	matches := Fuzzy{Floor: 0.7}.Run(NewQuery("websocket disconnects on idle"), []*incident.Incident{typo, byCause, blank, far})

	require.Len(t, matches, 2)
	assert.Equal(t, typo.ID, matches[0].Incident.ID)
	assert.Equal(t, []string{"symptom"}, matches[0].Highlights)
	assert.Equal(t, byCause.ID, matches[1].Incident.ID)
	assert.Equal(t, []string{"root_cause"}, matches[1].Highlights)
	assert.InDelta(t, FuzzyScale, matches[1].Score, 1e-9, "identical text scores 1.0 before scaling")
	for _, m := range matches {
		assert.LessOrEqual(t, m.Score, FuzzyScale)
		assert.Less(t, m.Score, TagScore)
	}
}

func TestFuzzy_FloorRejects(t *testing.T) {
	inc := newIncident("websocket disconects on idle", "network")
	assert.Empty(t, Fuzzy{Floor: 1.0}.Run(NewQuery("websocket disconnects on idle"), []*incident.Incident{inc}))
}

func TestCategory(t *testing.T) {
	db := newIncident("a", "database")
	pool := newIncident("b", "database-pool")
	ui := newIncident("c", "ui")
	none := newIncident("d", "")

	matches := Category{Table: DefaultCategories}.Run(NewQuery("postgres errors everywhere"), []*incident.Incident{db, pool, ui, none})

	require.Len(t, matches, 2)
	assert.Equal(t, db.ID, matches[0].Incident.ID)
	assert.Equal(t, pool.ID, matches[1].Incident.ID)
	assert.Equal(t, CategoryScore, matches[0].Score)
	assert.Equal(t, []string{"database"}, matches[0].Highlights)
}

func TestDetectCategories(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"useEffect runs twice", []string{"react-hooks"}},
		{"authentication token expired", []string{"authentication"}},
		{"configuration missing", []string{"configuration"}},
		{"validation fails", []string{"validation"}},
		{"database timeout", []string{"database", "performance"}},
		{"button misaligned", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCategories(DefaultCategories, NewQuery(tt.query).Keywords))
		})
	}
}

func TestMerge(t *testing.T) {
	a := newIncident("a", "x")
	b := newIncident("b", "x")

	merged := merge([][]Match{
		{{Incident: a, Score: 0.9, Strategy: StrategyTag}},
		{{Incident: b, Score: 0.6, Strategy: StrategyCategory}, {Incident: a, Score: 0.9, Strategy: StrategyFuzzy}},
		{{Incident: b, Score: 0.8, Strategy: StrategyFuzzy}},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, a.ID, merged[0].Incident.ID)
	assert.Equal(t, StrategyTag, merged[0].Strategy, "equal score keeps the earlier match")
	assert.Equal(t, StrategyFuzzy, merged[1].Strategy)
	assert.Equal(t, 0.8, merged[1].Score)
}
