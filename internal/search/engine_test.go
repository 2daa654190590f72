package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiomed/biosearch/internal/docstore"
	bioerrors "github.com/openbiomed/biosearch/internal/errors"
	"github.com/openbiomed/biosearch/internal/query"
	"github.com/openbiomed/biosearch/internal/telemetry"
	"github.com/openbiomed/biosearch/internal/vectorstore"
)

// fakeLexical is an in-memory LexicalIndex returning canned hits.
type fakeLexical struct {
	hits []*docstore.LexicalHit
	err  error
}

func (f *fakeLexical) Index(_ context.Context, _ []*docstore.Document) error { return nil }
func (f *fakeLexical) Search(_ context.Context, _ string, _ docstore.Filters, _ int) ([]*docstore.LexicalHit, error) {
	return f.hits, f.err
}
func (f *fakeLexical) Delete(_ context.Context, _ []string) error { return nil }
func (f *fakeLexical) Count() (int, error)                        { return len(f.hits), nil }
func (f *fakeLexical) Close() error                               { return nil }

// fakeVector is an in-memory VectorIndex returning canned hits.
type fakeVector struct {
	hits  []*vectorstore.VectorHit
	err   error
	added map[string][]float32
}

func (f *fakeVector) Add(_ context.Context, ids []string, vectors [][]float32) error {
	if f.added == nil {
		f.added = make(map[string][]float32)
	}
	for i, id := range ids {
		f.added[id] = vectors[i]
	}
	return nil
}
func (f *fakeVector) Search(_ context.Context, _ []float32, _ int) ([]*vectorstore.VectorHit, error) {
	return f.hits, f.err
}
func (f *fakeVector) Delete(_ context.Context, _ []string) error { return nil }
func (f *fakeVector) Count() int                                 { return len(f.hits) }

// fakeEmbedder returns fixed vectors.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}
func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int                  { return 3 }
func (f *fakeEmbedder) ModelName() string                { return "fake" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return f.err == nil }
func (f *fakeEmbedder) Close() error                     { return nil }

// fakeSnapshots serves documents from a map.
type fakeSnapshots struct {
	docs map[string]*docstore.Document
}

func (f *fakeSnapshots) Put(_ context.Context, docs []*docstore.Document) error {
	if f.docs == nil {
		f.docs = make(map[string]*docstore.Document)
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}
func (f *fakeSnapshots) Get(_ context.Context, id string) (*docstore.Document, error) {
	return f.docs[id], nil
}
func (f *fakeSnapshots) GetBatch(_ context.Context, ids []string) (map[string]*docstore.Document, error) {
	out := make(map[string]*docstore.Document)
	for _, id := range ids {
		if d, ok := f.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}
func (f *fakeSnapshots) Delete(_ context.Context, _ []string) error { return nil }
func (f *fakeSnapshots) Count(_ context.Context) (int, error)       { return len(f.docs), nil }
func (f *fakeSnapshots) CountBySource(_ context.Context) (map[docstore.SourceType]int, error) {
	counts := make(map[docstore.SourceType]int)
	for _, d := range f.docs {
		counts[d.SourceType]++
	}
	return counts, nil
}
func (f *fakeSnapshots) Close() error { return nil }

// scriptedReranker returns fixed scores or an error.
type scriptedReranker struct {
	scores    map[int]float64
	err       error
	available bool
	calls     int
}

func (r *scriptedReranker) Rerank(_ context.Context, _ string, documents []string) ([]RerankResult, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]RerankResult, len(documents))
	for i := range documents {
		out[i] = RerankResult{Index: i, Score: r.scores[i]}
	}
	return out, nil
}
func (r *scriptedReranker) Available(_ context.Context) bool { return r.available }
func (r *scriptedReranker) Close() error                     { return nil }

func yearPtr(y int) *int { return &y }

func testDoc(id, title string, year *int) *docstore.Document {
	return &docstore.Document{
		ID:         id,
		Title:      title,
		Abstract:   "abstract for " + id,
		SourceType: docstore.SourceLiterature,
		Year:       year,
	}
}

func newTestEngine(t *testing.T, lex docstore.LexicalIndex, vec *fakeVector, snaps *fakeSnapshots, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(lex, vec, &fakeEmbedder{}, snaps, DefaultEngineConfig(), opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngine_NilDependency(t *testing.T) {
	_, err := NewEngine(nil, &fakeVector{}, &fakeEmbedder{}, &fakeSnapshots{}, DefaultEngineConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	e := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeSnapshots{})

	_, err := e.Search(context.Background(), "   ", SearchOptions{})
	assert.Equal(t, bioerrors.ErrCodeQueryEmpty, bioerrors.GetCode(err))
}

func TestEngine_Search_InvalidSort(t *testing.T) {
	e := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeSnapshots{})

	_, err := e.Search(context.Background(), "hypertension", SearchOptions{SortBy: "best"})
	assert.Equal(t, bioerrors.ErrCodeInvalidInput, bioerrors.GetCode(err))
}

func TestEngine_Search_FusesBothLegs(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "alpha blockers", yearPtr(2020)),
		"b": testDoc("b", "beta blockers", yearPtr(2021)),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 10), lexHit("b", 2)}}
	vec := &fakeVector{hits: []*vectorstore.VectorHit{vecHit("b", 0.95), vecHit("a", 0.5)}}

	e := newTestEngine(t, lex, vec, snaps)
	results, err := e.Search(context.Background(), "blockers", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.NotNil(t, r.Document)
		assert.Equal(t, r.CombinedScore, r.FinalScore)
	}
}

func TestEngine_Search_VectorFailureDegradesToLexical(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "statins", yearPtr(2019)),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 4)}}
	vec := &fakeVector{err: errors.New("hnsw unavailable")}

	metrics := telemetry.NewQueryMetrics()
	e := newTestEngine(t, lex, vec, snaps, WithMetrics(metrics))

	results, err := e.Search(context.Background(), "statins", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Document.ID)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.QueryTypeCounts[telemetry.QueryTypeLexical])
}

func TestEngine_Search_EmbedFailureDegradesToLexical(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "statins", nil),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 4)}}
	vec := &fakeVector{hits: []*vectorstore.VectorHit{vecHit("a", 0.9)}}

	engine, err := NewEngine(lex, vec, &fakeEmbedder{err: errors.New("embed service down")}, snaps, DefaultEngineConfig())
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "statins", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].VectorScore)
}

func TestEngine_Search_BothLegsFailed(t *testing.T) {
	e := newTestEngine(t,
		&fakeLexical{err: errors.New("bleve corrupt")},
		&fakeVector{err: errors.New("hnsw gone")},
		&fakeSnapshots{})

	_, err := e.Search(context.Background(), "anything", SearchOptions{})
	require.Error(t, err)
	assert.Equal(t, bioerrors.ErrCodeSearchFailed, bioerrors.GetCode(err))
}

func TestEngine_Search_FiltersAppliedPostFusion(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"lit":   testDoc("lit", "a literature doc", yearPtr(2020)),
		"trial": {ID: "trial", Title: "a trial", SourceType: docstore.SourceTrial, Year: yearPtr(2020)},
	}}
	// Vector leg has no filter support: both docs come back.
	vec := &fakeVector{hits: []*vectorstore.VectorHit{vecHit("lit", 0.9), vecHit("trial", 0.8)}}
	e := newTestEngine(t, &fakeLexical{}, vec, snaps)

	results, err := e.Search(context.Background(), "doc", SearchOptions{
		Filters: docstore.Filters{SourceType: docstore.SourceLiterature},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lit", results[0].Document.ID)
}

func TestEngine_Search_DateSortMissingYearLast(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"old":    testDoc("old", "old study", yearPtr(2001)),
		"new":    testDoc("new", "new study", yearPtr(2024)),
		"noyear": testDoc("noyear", "undated study", nil),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{
		lexHit("noyear", 9), lexHit("old", 5), lexHit("new", 1),
	}}
	e := newTestEngine(t, lex, &fakeVector{}, snaps)

	desc, err := e.Search(context.Background(), "study", SearchOptions{SortBy: SortDateDesc})
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, "new", desc[0].Document.ID)
	assert.Equal(t, "old", desc[1].Document.ID)
	assert.Equal(t, "noyear", desc[2].Document.ID)

	asc, err := e.Search(context.Background(), "study", SearchOptions{SortBy: SortDateAsc})
	require.NoError(t, err)
	assert.Equal(t, "old", asc[0].Document.ID)
	assert.Equal(t, "new", asc[1].Document.ID)
	assert.Equal(t, "noyear", asc[2].Document.ID)
}

func TestEngine_Search_RerankerBlendsScores(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "first", yearPtr(2020)),
		"b": testDoc("b", "second", yearPtr(2021)),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 10), lexHit("b", 1)}}

	// Reranker strongly prefers the lexically weaker document.
	rr := &scriptedReranker{available: true, scores: map[int]float64{0: 0.1, 1: 0.99}}
	e := newTestEngine(t, lex, &fakeVector{}, snaps, WithReranker(rr, DefaultRerankerBlend()))

	results, err := e.Search(context.Background(), "first second", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Document.ID)
	assert.InDelta(t, 0.3*results[0].CombinedScore+0.7*0.99, results[0].FinalScore, 1e-9)
}

func TestEngine_Search_RerankerFailurePreservesFusedOrder(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "first", nil),
		"b": testDoc("b", "second", nil),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 10), lexHit("b", 1)}}

	rr := &scriptedReranker{available: true, err: errors.New("reranker down")}
	e := newTestEngine(t, lex, &fakeVector{}, snaps, WithReranker(rr, DefaultRerankerBlend()))

	results, err := e.Search(context.Background(), "first second", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, 1, rr.calls)
}

func TestEngine_Search_RerankerSkippedWhenUnavailable(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "first", nil),
		"b": testDoc("b", "second", nil),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 10), lexHit("b", 1)}}

	rr := &scriptedReranker{available: false}
	e := newTestEngine(t, lex, &fakeVector{}, snaps, WithReranker(rr, DefaultRerankerBlend()))

	_, err := e.Search(context.Background(), "first second", SearchOptions{})
	require.NoError(t, err)
	assert.Zero(t, rr.calls)
}

func TestEngine_Search_RerankingDisabledPerRequest(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "first", nil),
		"b": testDoc("b", "second", nil),
	}}
	lex := &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 10), lexHit("b", 1)}}

	// Reranker would invert the order if it ran.
	rr := &scriptedReranker{available: true, scores: map[int]float64{0: 0.1, 1: 0.99}}
	e := newTestEngine(t, lex, &fakeVector{}, snaps, WithReranker(rr, DefaultRerankerBlend()))

	off := false
	results, err := e.Search(context.Background(), "first second", SearchOptions{UseReranking: &off})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Zero(t, rr.calls)
	assert.Zero(t, results[0].RerankScore)
}

func TestEngine_Search_TopKLimit(t *testing.T) {
	docs := make(map[string]*docstore.Document)
	var hits []*docstore.LexicalHit
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		docs[id] = testDoc(id, "doc "+id, nil)
		hits = append(hits, lexHit(id, float64(len(hits)+1)))
	}
	e := newTestEngine(t, &fakeLexical{hits: hits}, &fakeVector{}, &fakeSnapshots{docs: docs})

	results, err := e.Search(context.Background(), "doc", SearchOptions{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEngine_Search_QueryProcessorExpandsLexicalLeg(t *testing.T) {
	var gotQuery string
	lex := &capturingLexical{}
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{}}

	e := newTestEngine(t, lex, &fakeVector{}, snaps, WithQueryProcessor(query.NewProcessor()))

	_, err := e.Search(context.Background(), "HTN treatment", SearchOptions{})
	require.NoError(t, err)
	gotQuery = lex.lastQuery
	assert.Equal(t, "htn hypertension high blood pressure treatment", gotQuery)
}

// capturingLexical records the query it was searched with.
type capturingLexical struct {
	lastQuery string
}

func (c *capturingLexical) Index(_ context.Context, _ []*docstore.Document) error { return nil }
func (c *capturingLexical) Search(_ context.Context, q string, _ docstore.Filters, _ int) ([]*docstore.LexicalHit, error) {
	c.lastQuery = q
	return nil, nil
}
func (c *capturingLexical) Delete(_ context.Context, _ []string) error { return nil }
func (c *capturingLexical) Count() (int, error)                        { return 0, nil }
func (c *capturingLexical) Close() error                               { return nil }

func TestEngine_Index_PopulatesAllStores(t *testing.T) {
	snaps := &fakeSnapshots{}
	vec := &fakeVector{}
	e := newTestEngine(t, &fakeLexical{}, vec, snaps)

	docs := []*docstore.Document{
		testDoc("a", "alpha", yearPtr(2020)),
		testDoc("b", "beta", yearPtr(2021)),
	}
	require.NoError(t, e.Index(context.Background(), docs))

	assert.Len(t, snaps.docs, 2)
	assert.Len(t, vec.added, 2)
}

func TestEngine_Index_RejectsEmptyID(t *testing.T) {
	e := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeSnapshots{})

	err := e.Index(context.Background(), []*docstore.Document{{Title: "no id"}})
	assert.True(t, bioerrors.IsValidation(err))
}

func TestEngine_Document_NotFound(t *testing.T) {
	e := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeSnapshots{docs: map[string]*docstore.Document{}})

	_, err := e.Document(context.Background(), "missing")
	assert.Equal(t, bioerrors.ErrCodeDocumentMissing, bioerrors.GetCode(err))
}

func TestEngine_Stats(t *testing.T) {
	snaps := &fakeSnapshots{docs: map[string]*docstore.Document{
		"a": testDoc("a", "alpha", nil),
	}}
	e := newTestEngine(t, &fakeLexical{hits: []*docstore.LexicalHit{lexHit("a", 1)}}, &fakeVector{}, snaps)

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, "fake", stats.EmbeddingModel)
	assert.Equal(t, 1, stats.CountsBySource[docstore.SourceLiterature])
	assert.False(t, stats.RerankerEnabled)
}
