package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Field boosts for lexical retrieval. Title matches count double,
// keyword matches half again, and an exact title phrase triples.
const (
	titleBoost       = 2.0
	keywordsBoost    = 1.5
	titlePhraseBoost = 3.0
	matchFuzziness   = 1
)

// BleveIndex implements LexicalIndex using Bleve v2 BM25 scoring.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveIndex)(nil)

// bleveDocument is the document shape handed to Bleve for indexing.
type bleveDocument struct {
	Title        string   `json:"title"`
	Abstract     string   `json:"abstract"`
	FullText     string   `json:"full_text"`
	Keywords     []string `json:"keywords"`
	SourceType   string   `json:"source_type"`
	ArticleTypes []string `json:"article_types"`
	Year         *float64 `json:"year,omitempty"`
	HasFullText  bool     `json:"has_full_text"`
	OpenAccess   bool     `json:"open_access"`
}

// validateIndexIntegrity checks a Bleve index directory before opening.
// Returns nil if the index is absent or looks valid.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex creates or opens the lexical index at path.
// If path is empty, an in-memory index is created for testing.
// A corrupted on-disk index is cleared and recreated; the caller must
// reindex afterwards.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping := buildIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory: %w", mkErr)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open lexical index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

// buildIndexMapping creates the Bleve mapping for biomedical documents.
// Text fields use the standard analyzer; source_type and article_types
// are keyword fields so filters match exact values.
func buildIndexMapping() *mapping.IndexMappingImpl {
	docMapping := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("title", text)
	docMapping.AddFieldMappingsAt("abstract", text)
	docMapping.AddFieldMappingsAt("full_text", text)
	docMapping.AddFieldMappingsAt("keywords", text)

	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("source_type", kw)
	docMapping.AddFieldMappingsAt("article_types", kw)

	docMapping.AddFieldMappingsAt("year", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("has_full_text", bleve.NewBooleanFieldMapping())
	docMapping.AddFieldMappingsAt("open_access", bleve.NewBooleanFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Index adds or replaces documents in batch.
func (b *BleveIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		var year *float64
		if doc.Year != nil {
			y := float64(*doc.Year)
			year = &y
		}
		bd := bleveDocument{
			Title:        doc.Title,
			Abstract:     doc.Abstract,
			FullText:     doc.FullText,
			Keywords:     doc.Keywords,
			SourceType:   string(doc.SourceType),
			ArticleTypes: doc.ArticleTypes,
			Year:         year,
			HasFullText:  doc.HasFullText(),
			OpenAccess:   doc.OpenAccess,
		}
		if err := batch.Index(doc.ID, bd); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search returns BM25 hits for the query text, best first.
func (b *BleveIndex) Search(ctx context.Context, text string, filters Filters, limit int) ([]*LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	if strings.TrimSpace(text) == "" {
		return []*LexicalHit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	searchRequest := bleve.NewSearchRequest(buildQuery(text, filters))
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]*LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, &LexicalHit{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return hits, nil
}

// buildQuery assembles the boosted multi-field query with filters.
// At least one text clause must match; filter clauses are mandatory.
func buildQuery(text string, filters Filters) query.Query {
	title := bleve.NewMatchQuery(text)
	title.SetField("title")
	title.SetBoost(titleBoost)
	title.SetFuzziness(matchFuzziness)

	abstract := bleve.NewMatchQuery(text)
	abstract.SetField("abstract")
	abstract.SetFuzziness(matchFuzziness)

	keywords := bleve.NewMatchQuery(text)
	keywords.SetField("keywords")
	keywords.SetBoost(keywordsBoost)

	fullText := bleve.NewMatchQuery(text)
	fullText.SetField("full_text")
	fullText.SetFuzziness(matchFuzziness)

	titlePhrase := bleve.NewMatchPhraseQuery(text)
	titlePhrase.SetField("title")
	titlePhrase.SetBoost(titlePhraseBoost)

	should := bleve.NewDisjunctionQuery(title, abstract, keywords, fullText, titlePhrase)
	should.SetMin(1)

	conj := bleve.NewConjunctionQuery(should)

	if filters.SourceType != "" {
		st := bleve.NewTermQuery(string(filters.SourceType))
		st.SetField("source_type")
		conj.AddQuery(st)
	}

	if filters.YearMin != nil || filters.YearMax != nil {
		var lo, hi *float64
		if filters.YearMin != nil {
			v := float64(*filters.YearMin)
			lo = &v
		}
		if filters.YearMax != nil {
			v := float64(*filters.YearMax)
			hi = &v
		}
		inclusive := true
		yr := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
		yr.SetField("year")
		conj.AddQuery(yr)
	}

	if len(filters.ArticleTypes) > 0 {
		types := bleve.NewDisjunctionQuery()
		for _, at := range filters.ArticleTypes {
			tq := bleve.NewTermQuery(at)
			tq.SetField("article_types")
			types.AddQuery(tq)
		}
		types.SetMin(1)
		conj.AddQuery(types)
	}

	if filters.RequireFullText {
		ft := bleve.NewBoolFieldQuery(true)
		ft.SetField("has_full_text")
		conj.AddQuery(ft)
	}

	if filters.OpenAccessOnly {
		oa := bleve.NewBoolFieldQuery(true)
		oa.SetField("open_access")
		conj.AddQuery(oa)
	}

	return conj
}

// Delete removes documents by ID.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (b *BleveIndex) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}

	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms collects the distinct terms that matched the
// hit, sorted so identical searches report identical term lists.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			seen[term] = struct{}{}
		}
	}

	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
