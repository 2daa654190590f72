package search

import (
	"sort"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/vectorstore"
)

// FusedResult is a single candidate after score fusion.
type FusedResult struct {
	DocID         string
	LexicalScore  float64 // raw BM25 score (0 if absent from lexical list)
	VectorScore   float64 // similarity score (0 if absent from vector list)
	LexicalNorm   float64 // min-max normalized lexical score
	VectorNorm    float64 // min-max normalized vector score
	CombinedScore float64 // alpha * lex_norm + (1-alpha) * vec_norm
	InBothLists   bool
	MatchedTerms  []string
}

// LinearFusion combines lexical and vector results by min-max
// normalizing each score list and interpolating with weight alpha.
//
// combined(d) = alpha * lex_norm(d) + (1-alpha) * vec_norm(d)
//
// A document missing from one list contributes 0 for that side; it is
// never dropped, so single-list hits survive fusion.
type LinearFusion struct {
	Alpha float64 // lexical weight in [0,1]
}

// NewLinearFusion creates a fusion instance with the given lexical
// weight. Values outside [0,1] are clamped.
func NewLinearFusion(alpha float64) *LinearFusion {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return &LinearFusion{Alpha: alpha}
}

// Fuse combines the two candidate lists.
//
// Results are sorted by CombinedScore (desc), then InBothLists (true
// first), then LexicalScore (desc), then DocID (asc) so ordering is
// deterministic.
func (f *LinearFusion) Fuse(lex []*docstore.LexicalHit, vec []*vectorstore.VectorHit) []*FusedResult {
	if len(lex) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	lexScores := make([]float64, len(lex))
	for i, h := range lex {
		lexScores[i] = h.Score
	}
	vecScores := make([]float64, len(vec))
	for i, h := range vec {
		vecScores[i] = h.Score
	}
	lexNorms := minMaxNormalize(lexScores)
	vecNorms := minMaxNormalize(vecScores)

	fused := make(map[string]*FusedResult, len(lex)+len(vec))

	for i, h := range lex {
		r := getOrCreate(fused, h.DocID)
		r.LexicalScore = h.Score
		r.LexicalNorm = lexNorms[i]
		r.MatchedTerms = h.MatchedTerms
	}
	for i, h := range vec {
		_, fromLex := fused[h.DocID]
		r := getOrCreate(fused, h.DocID)
		r.VectorScore = h.Score
		r.VectorNorm = vecNorms[i]
		r.InBothLists = fromLex
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, r := range fused {
		r.CombinedScore = f.Alpha*r.LexicalNorm + (1-f.Alpha)*r.VectorNorm
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.InBothLists != b.InBothLists {
			return a.InBothLists
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return a.DocID < b.DocID
	})

	return results
}

func getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{DocID: id}
	m[id] = r
	return r
}

// minMaxNormalize maps scores to [0,1]. When all scores are equal
// (including a single-element list) every score maps to 1.0 so the
// list still contributes fully to fusion.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	norms := make([]float64, len(scores))
	if hi == lo {
		for i := range norms {
			norms[i] = 1.0
		}
		return norms
	}
	for i, s := range scores {
		norms[i] = (s - lo) / (hi - lo)
	}
	return norms
}
