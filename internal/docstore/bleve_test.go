package docstore

import (
	"context"
	"testing"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func testCorpus() []*Document {
	return []*Document{
		{
			ID:         "pmid-1",
			Title:      "Hypertension treatment with ACE inhibitors",
			Abstract:   "A randomized trial of ACE inhibitors for high blood pressure in adults.",
			SourceType: SourceLiterature,
			Year:       intPtr(2021),
			Keywords:   []string{"hypertension", "ace inhibitors"},
			OpenAccess: true,
		},
		{
			ID:         "pmid-2",
			Title:      "Diabetes mellitus and kidney disease",
			Abstract:   "Chronic kidney disease progression in type 2 diabetes mellitus.",
			FullText:   "Long form discussion of diabetes mellitus, nephropathy, and treatment options.",
			SourceType: SourceLiterature,
			Year:       intPtr(2018),
			ArticleTypes: []string{
				"review",
			},
		},
		{
			ID:         "nct-1",
			Title:      "Trial of ACE inhibitors in hypertension",
			Abstract:   "Phase 3 clinical trial evaluating blood pressure control.",
			SourceType: SourceTrial,
			Year:       intPtr(2023),
		},
	}
}

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.Index(context.Background(), testCorpus()))
	return idx
}

func TestBleveIndex_SearchRanksTitleMatchesFirst(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "hypertension", Filters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// Both hypertension documents match; the diabetes one does not.
	ids := make(map[string]bool)
	for _, h := range hits {
		ids[h.DocID] = true
		assert.Greater(t, h.Score, 0.0)
	}
	assert.True(t, ids["pmid-1"])
	assert.True(t, ids["nct-1"])
	assert.False(t, ids["pmid-2"])
}

func TestBleveIndex_EmptyQueryReturnsNoHits(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "   ", Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveIndex_EmptyIndexReturnsNoHits(t *testing.T) {
	idx, err := NewBleveIndex("")
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Search(context.Background(), "hypertension", Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveIndex_SourceTypeFilter(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "hypertension",
		Filters{SourceType: SourceTrial}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "nct-1", hits[0].DocID)
}

func TestBleveIndex_YearRangeFilter(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "hypertension",
		Filters{YearMin: intPtr(2022)}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "nct-1", hits[0].DocID)
}

func TestBleveIndex_FullTextAvailabilityFilter(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "diabetes",
		Filters{RequireFullText: true}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pmid-2", hits[0].DocID)
}

func TestBleveIndex_OpenAccessFilter(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "hypertension",
		Filters{OpenAccessOnly: true}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pmid-1", hits[0].DocID)
}

func TestBleveIndex_ArticleTypeFilter(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "diabetes",
		Filters{ArticleTypes: []string{"review"}}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pmid-2", hits[0].DocID)
}

func TestBleveIndex_DeleteRemovesDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Delete(ctx, []string{"pmid-1"}))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hits, err := idx.Search(ctx, "ace inhibitors", Filters{SourceType: SourceLiterature}, 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "pmid-1", h.DocID)
	}
}

func TestBleveIndex_ClosedIndexErrors(t *testing.T) {
	idx, err := NewBleveIndex("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "anything", Filters{}, 10)
	assert.Error(t, err)

	err = idx.Index(context.Background(), testCorpus())
	assert.Error(t, err)
}

func TestFilters_Match(t *testing.T) {
	doc := &Document{
		ID:         "pmid-9",
		SourceType: SourceLiterature,
		Year:       intPtr(2020),
		FullText:   "body",
		OpenAccess: false,
	}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"no filters", Filters{}, true},
		{"matching source", Filters{SourceType: SourceLiterature}, true},
		{"wrong source", Filters{SourceType: SourceTrial}, false},
		{"year in range", Filters{YearMin: intPtr(2019), YearMax: intPtr(2021)}, true},
		{"year below min", Filters{YearMin: intPtr(2021)}, false},
		{"full text present", Filters{RequireFullText: true}, true},
		{"open access required", Filters{OpenAccessOnly: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Match(doc))
		})
	}
}

func TestFilters_MatchMissingYearFailsYearFilter(t *testing.T) {
	doc := &Document{ID: "x", SourceType: SourceTrial}
	assert.False(t, Filters{YearMin: intPtr(2000)}.Match(doc))
	assert.False(t, Filters{YearMax: intPtr(2030)}.Match(doc))
	assert.True(t, Filters{}.Match(doc))
}

func TestExtractMatchedTerms_Sorted(t *testing.T) {
	hit := &search.DocumentMatch{
		Locations: search.FieldTermLocationMap{
			"title":    search.TermLocationMap{"zeta": nil, "alpha": nil},
			"abstract": search.TermLocationMap{"mid": nil, "alpha": nil},
		},
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, extractMatchedTerms(hit))
}
