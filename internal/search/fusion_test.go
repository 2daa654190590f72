package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/vectorstore"
)

func lexHit(id string, score float64) *docstore.LexicalHit {
	return &docstore.LexicalHit{DocID: id, Score: score}
}

func vecHit(id string, score float64) *vectorstore.VectorHit {
	return &vectorstore.VectorHit{DocID: id, Score: score}
}

func TestMinMaxNormalize(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   []float64
	}{
		{"empty", nil, nil},
		{"singleton maps to one", []float64{3.7}, []float64{1.0}},
		{"all equal map to one", []float64{2, 2, 2}, []float64{1, 1, 1}},
		{"spread", []float64{10, 5, 0}, []float64{1, 0.5, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, minMaxNormalize(tt.scores))
		})
	}
}

func TestLinearFusion_BothLists(t *testing.T) {
	f := NewLinearFusion(0.5)

	fused := f.Fuse(
		[]*docstore.LexicalHit{lexHit("a", 10), lexHit("b", 5)},
		[]*vectorstore.VectorHit{vecHit("b", 0.9), vecHit("c", 0.1)},
	)

	require.Len(t, fused, 3)

	byID := make(map[string]*FusedResult)
	for _, r := range fused {
		byID[r.DocID] = r
	}

	// a: lex norm 1.0, no vector side.
	assert.InDelta(t, 0.5, byID["a"].CombinedScore, 1e-9)
	assert.False(t, byID["a"].InBothLists)

	// b: lex norm 0.0, vec norm 1.0.
	assert.InDelta(t, 0.5, byID["b"].CombinedScore, 1e-9)
	assert.True(t, byID["b"].InBothLists)

	// c: vec norm 0.0 only.
	assert.InDelta(t, 0.0, byID["c"].CombinedScore, 1e-9)
}

func TestLinearFusion_SingleListDocsSurvive(t *testing.T) {
	f := NewLinearFusion(0.5)

	fused := f.Fuse(
		[]*docstore.LexicalHit{lexHit("only-lex", 7)},
		nil,
	)

	require.Len(t, fused, 1)
	assert.Equal(t, "only-lex", fused[0].DocID)
	// Singleton list normalizes to 1.0.
	assert.InDelta(t, 0.5, fused[0].CombinedScore, 1e-9)
}

func TestLinearFusion_AlphaExtremes(t *testing.T) {
	lex := []*docstore.LexicalHit{lexHit("a", 10), lexHit("b", 1)}
	vec := []*vectorstore.VectorHit{vecHit("b", 0.9), vecHit("a", 0.2)}

	// Pure lexical: order follows BM25.
	lexOnly := NewLinearFusion(1.0).Fuse(lex, vec)
	assert.Equal(t, "a", lexOnly[0].DocID)

	// Pure vector: order follows similarity.
	vecOnly := NewLinearFusion(0.0).Fuse(lex, vec)
	assert.Equal(t, "b", vecOnly[0].DocID)
}

func TestLinearFusion_DeterministicTiebreak(t *testing.T) {
	f := NewLinearFusion(0.5)

	// Identical scores on every side: order falls back to doc ID.
	fused := f.Fuse(
		[]*docstore.LexicalHit{lexHit("z", 5), lexHit("m", 5), lexHit("a", 5)},
		nil,
	)

	require.Len(t, fused, 3)
	assert.Equal(t, "a", fused[0].DocID)
	assert.Equal(t, "m", fused[1].DocID)
	assert.Equal(t, "z", fused[2].DocID)
}

func TestLinearFusion_Empty(t *testing.T) {
	fused := NewLinearFusion(0.5).Fuse(nil, nil)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestNewLinearFusion_ClampsAlpha(t *testing.T) {
	assert.Equal(t, 0.0, NewLinearFusion(-1).Alpha)
	assert.Equal(t, 1.0, NewLinearFusion(2).Alpha)
}

func TestLinearFusion_MatchedTermsPreserved(t *testing.T) {
	hit := lexHit("a", 3)
	hit.MatchedTerms = []string{"hypertension"}

	fused := NewLinearFusion(0.5).Fuse([]*docstore.LexicalHit{hit}, nil)
	require.Len(t, fused, 1)
	assert.Equal(t, []string{"hypertension"}, fused[0].MatchedTerms)
}
