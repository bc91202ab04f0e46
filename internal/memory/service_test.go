package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/debugmem/internal/aggregate"
	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/search"
	"github.com/fyrsmithlabs/debugmem/internal/store"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg *Config) (Service, *store.MemoryStore, *telemetry.TestTelemetry) {
	t.Helper()
	st := store.NewMemoryStore()
	tel := telemetry.NewTestTelemetry()
	svc, err := NewService(cfg, st,
		WithTelemetry(tel.Telemetry),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, st, tel
}

func hookIncident() *incident.Incident {
	return &incident.Incident{
		Agent:   "session-1",
		Symptom: "component re-renders forever",
		RootCause: incident.RootCause{
			Description: "effect dependency array recreated each render",
			Category:    "react-hooks",
			Confidence:  0.9,
		},
		Fix:          incident.Fix{Approach: "memoize the dependency with useMemo"},
		Verification: incident.Verification{Status: incident.StatusVerified},
		Tags:         []string{"react", "hooks"},
	}
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.Error(t, err)

	svc, err := NewService(nil, store.NewMemoryStore())
	require.NoError(t, err)
	assert.NoError(t, svc.Close())
}

func TestStoreIncident_AssignsIdentity(t *testing.T) {
	svc, st, tel := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.StoreIncident(ctx, hookIncident())
	require.NoError(t, err)

	inc := res.Incident
	assert.NoError(t, incident.ValidateIncidentID(inc.ID))
	assert.Contains(t, inc.ID, "INC_20261016_120000_")
	assert.Equal(t, now, inc.Timestamp)
	assert.Greater(t, inc.Completeness.QualityScore, 0.8)
	assert.Nil(t, res.Pattern)

	got, err := st.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, inc.Symptom, got.Symptom)

	tel.AssertSpanExists(t, "memory.store_incident")
	tel.AssertSpanAttribute(t, "memory.store_incident", "incident.category", "react-hooks")
}

func TestStoreIncident_Invalid(t *testing.T) {
	svc, st, tel := newTestService(t, nil)
	ctx := context.Background()

	bad := hookIncident()
	bad.Symptom = " "
	_, err := svc.StoreIncident(ctx, bad)
	assert.ErrorIs(t, err, incident.ErrInvalidIncident)
	tel.AssertSpanError(t, "memory.store_incident")

	_, err = svc.StoreIncident(ctx, nil)
	assert.ErrorIs(t, err, incident.ErrInvalidIncident)

	incs, err := st.LoadAllIncidents(ctx)
	require.NoError(t, err)
	assert.Empty(t, incs)
}

func TestStoreIncident_TriggersExtraction(t *testing.T) {
	svc, st, tel := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := svc.StoreIncident(ctx, hookIncident())
		require.NoError(t, err)
		assert.Nil(t, res.Pattern)
	}

	res, err := svc.StoreIncident(ctx, hookIncident())
	require.NoError(t, err)
	require.NotNil(t, res.Pattern)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "PTN_REACT_HOOKS_AUTO_EXTRACTED", res.Pattern.ID)
	assert.Len(t, res.Pattern.SourceIncidents, 3)
	assert.True(t, res.Incident.Patternized)

	incs, err := st.LoadAllIncidents(ctx)
	require.NoError(t, err)
	for _, inc := range incs {
		assert.True(t, inc.Patternized, inc.ID)
		assert.Equal(t, res.Pattern.ID, inc.PatternID)
	}

	// A fourth incident finds the category already covered.
	res, err = svc.StoreIncident(ctx, hookIncident())
	require.NoError(t, err)
	assert.Nil(t, res.Pattern)

	tel.AssertSpanAttribute(t, "memory.store_incident", "incident.category", "react-hooks")
	assert.Equal(t, int64(1), tel.Int64Sum(t, "debugmem.patterns.extracted_total"))
}

func TestStoreIncident_AutoExtractDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoExtract = false
	svc, st, _ := newTestService(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := svc.StoreIncident(ctx, hookIncident())
		require.NoError(t, err)
		assert.Nil(t, res.Pattern)
	}
	pats, err := st.LoadAllPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, pats)

	incs, err := st.LoadAllIncidents(ctx)
	require.NoError(t, err)
	p, err := svc.MaybeExtract(ctx, incs[0])
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Len(t, p.SourceIncidents, 3)
}

func TestSearchAndCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoExtract = false
	svc, _, tel := newTestService(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.StoreIncident(ctx, hookIncident())
		require.NoError(t, err)
	}

	res, err := svc.Search(ctx, "component re-renders forever", search.Options{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, 1.0, res.Matches[0].Score)
	tel.AssertSpanAttribute(t, "memory.search", "results", int64(3))
	assert.Equal(t, int64(1), tel.Int64Sum(t, "debugmem.search.requests_total"))

	check, err := svc.CheckMemory(ctx, "component re-renders forever", search.Options{})
	require.NoError(t, err)
	assert.Equal(t, search.SourceIncidents, check.Source)
	tel.AssertSpanAttribute(t, "memory.check", "source", "incidents")

	ext, err := svc.ExtractPatterns(ctx, patterns.ExtractOptions{AutoStore: true})
	require.NoError(t, err)
	require.Len(t, ext.Patterns, 1)
	tel.AssertSpanExists(t, "memory.extract_patterns")

	pr, err := svc.MatchPatterns(ctx, "component re-renders forever", search.Options{})
	require.NoError(t, err)
	require.Len(t, pr.Matches, 1)

	check, err = svc.CheckMemory(ctx, "component re-renders forever", search.Options{})
	require.NoError(t, err)
	assert.Equal(t, search.SourcePatterns, check.Source)
	assert.Empty(t, check.Incidents)
}

func TestSearchOptions_ExplicitZeroThreshold(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	require.NoError(t, st.PersistPattern(ctx, &incident.Pattern{
		ID:                 incident.PatternID("database", incident.AutoPatternName),
		Category:           "database",
		DetectionSignature: []string{"database"},
		Tags:               []string{"database"},
	}))
	const query = "database connection pool exhausted"

	pr, err := svc.MatchPatterns(ctx, query, search.Options{})
	require.NoError(t, err)
	assert.Empty(t, pr.Matches, "configured default threshold applies")

	pr, err = svc.MatchPatterns(ctx, query, search.Options{Threshold: search.Threshold(0)})
	require.NoError(t, err)
	require.Len(t, pr.Matches, 1)
	assert.InDelta(t, 0.25, pr.Matches[0].Score, 1e-9)

	cfg := DefaultConfig()
	cfg.Search.Threshold = search.Threshold(0)
	zeroSvc, zeroStore, _ := newTestService(t, cfg)
	require.NoError(t, zeroStore.PersistPattern(ctx, pr.Matches[0].Pattern))
	pr, err = zeroSvc.MatchPatterns(ctx, query, search.Options{})
	require.NoError(t, err)
	assert.Len(t, pr.Matches, 1, "configured zero threshold is kept")
}

func TestAggregate_WithQuery(t *testing.T) {
	svc, _, tel := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.StoreIncident(ctx, hookIncident())
		require.NoError(t, err)
	}

	res, err := svc.Aggregate(ctx, &AggregateRequest{
		Query: "component re-renders forever",
		Assessments: []aggregate.Assessment{{
			Domain:     "react-hooks",
			Summary:    "stale closure in effect",
			Confidence: 0.85,
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalInputs)
	assert.Equal(t, 2, res.Duplicates)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, []string{"react-hooks"}, res.Domains)
	assert.Contains(t, res.Actions, "memoize the dependency with useMemo")
	tel.AssertSpanExists(t, "memory.aggregate")
}

func TestAggregate_NilRequest(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	res, err := svc.Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestStats(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.StoreIncident(ctx, hookIncident())
		require.NoError(t, err)
	}
	other := hookIncident()
	other.RootCause.Category = "database"
	other.Verification.Status = incident.StatusPartial
	_, err := svc.StoreIncident(ctx, other)
	require.NoError(t, err)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Incidents)
	assert.Equal(t, 1, st.Patterns)
	assert.Equal(t, 3, st.Patternized)
	assert.Equal(t, 3, st.Verified)
	assert.Equal(t, map[string]int{"react-hooks": 3, "database": 1}, st.Categories)
	assert.Equal(t, []string{"react-hooks", "database"}, st.SortedCategories())
	assert.Greater(t, st.MeanQuality, 0.0)
}

func TestClosed(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	_, err := svc.Search(ctx, "x", search.Options{})
	assert.ErrorIs(t, err, ErrServiceClosed)
	_, err = svc.StoreIncident(ctx, hookIncident())
	assert.ErrorIs(t, err, ErrServiceClosed)
	_, err = svc.Stats(ctx)
	assert.ErrorIs(t, err, ErrServiceClosed)
	_, err = svc.Aggregate(ctx, nil)
	assert.ErrorIs(t, err, ErrServiceClosed)
}
