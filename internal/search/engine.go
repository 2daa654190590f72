package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/embed"
	bioerrors "github.com/openbiomed/biosearch/internal/errors"
	"github.com/openbiomed/biosearch/internal/query"
	"github.com/openbiomed/biosearch/internal/telemetry"
	"github.com/openbiomed/biosearch/internal/vectorstore"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// MaxTopK caps how many results a single search may request.
const MaxTopK = 100

// Engine implements hybrid search over the lexical index and vector
// store, with snapshots providing full document records.
type Engine struct {
	lexical   docstore.LexicalIndex
	vector    VectorIndex
	embedder  embed.Embedder
	snapshots docstore.SnapshotStore
	config    EngineConfig

	processor *query.Processor
	reranker  Reranker
	blend     RerankerBlend
	metrics   *telemetry.QueryMetrics
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithQueryProcessor sets the query processor. The lexical leg
// searches with the abbreviation-expanded query; the vector leg embeds
// the cleaned query, since the embedding model handles synonymy itself.
func WithQueryProcessor(p *query.Processor) EngineOption {
	return func(e *Engine) {
		e.processor = p
	}
}

// WithReranker sets an optional cross-encoder reranker. Fused results
// are reranked before the limit is applied; any reranker failure
// falls back to the fused order.
func WithReranker(r Reranker, blend RerankerBlend) EngineOption {
	return func(e *Engine) {
		e.reranker = r
		e.blend = blend
	}
}

// WithMetrics sets an optional query metrics collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a hybrid search engine. Returns an error if any
// required dependency is nil.
func NewEngine(
	lexical docstore.LexicalIndex,
	vector VectorIndex,
	embedder embed.Embedder,
	snapshots docstore.SnapshotStore,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if snapshots == nil {
		return nil, fmt.Errorf("%w: snapshot store is required", ErrNilDependency)
	}

	if config.TopK <= 0 {
		config.TopK = DefaultEngineConfig().TopK
	}
	if config.CandidateMultiplier <= 0 {
		config.CandidateMultiplier = DefaultEngineConfig().CandidateMultiplier
	}
	if config.EmbedBatchSize <= 0 {
		config.EmbedBatchSize = DefaultEngineConfig().EmbedBatchSize
	}

	e := &Engine{
		lexical:   lexical,
		vector:    vector,
		embedder:  embedder,
		snapshots: snapshots,
		config:    config,
		blend:     DefaultRerankerBlend(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs both retrieval legs in parallel, fuses, enriches from
// the snapshot store, optionally reranks, and returns the top results.
//
// A vector-side failure (embedding or search) degrades to
// lexical-only with a warning; the search fails only when both legs
// fail.
func (e *Engine) Search(ctx context.Context, rawQuery string, opts SearchOptions) ([]*SearchResult, error) {
	start := time.Now()

	rawQuery = strings.TrimSpace(rawQuery)
	if rawQuery == "" {
		return nil, bioerrors.New(bioerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if !opts.SortBy.Valid() {
		return nil, bioerrors.New(bioerrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown sort order %q", opts.SortBy), nil)
	}
	opts = e.applyDefaults(opts)

	lexQuery, embedQuery := rawQuery, rawQuery
	if e.processor != nil {
		processed := e.processor.Process(rawQuery)
		if processed.Cleaned != "" {
			lexQuery = processed.Expanded
			embedQuery = processed.Cleaned
		}
	}

	candidates := opts.TopK * e.config.CandidateMultiplier
	lexHits, vecHits, lexErr, vecErr := e.parallelSearch(ctx, lexQuery, embedQuery, candidates, opts.Filters)

	queryType := telemetry.QueryTypeHybrid
	switch {
	case lexErr != nil && vecErr != nil:
		return nil, bioerrors.New(bioerrors.ErrCodeSearchFailed, "both retrieval legs failed",
			errors.Join(lexErr, vecErr))
	case vecErr != nil:
		slog.Warn("vector_search_degraded",
			slog.String("query", rawQuery),
			slog.String("error", vecErr.Error()))
		queryType = telemetry.QueryTypeLexical
	case lexErr != nil:
		slog.Warn("lexical_search_degraded",
			slog.String("query", rawQuery),
			slog.String("error", lexErr.Error()))
	}

	fusion := NewLinearFusion(*opts.Alpha)
	fused := fusion.Fuse(lexHits, vecHits)

	results, err := e.enrich(ctx, fused, opts.Filters)
	if err != nil {
		return nil, err
	}

	if opts.SortBy == SortRelevance || opts.SortBy == "" {
		if *opts.UseReranking {
			e.rerank(ctx, rawQuery, results)
		}
	} else {
		sortByDate(results, opts.SortBy)
	}

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	e.recordMetrics(rawQuery, queryType, len(results), time.Since(start))
	return results, nil
}

func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.TopK <= 0 {
		opts.TopK = e.config.TopK
	}
	if opts.TopK > MaxTopK {
		opts.TopK = MaxTopK
	}
	if opts.Alpha == nil {
		alpha := e.config.Alpha
		opts.Alpha = &alpha
	}
	if opts.SortBy == "" {
		opts.SortBy = SortRelevance
	}
	if opts.UseReranking == nil {
		rerank := true
		opts.UseReranking = &rerank
	}
	return opts
}

// parallelSearch runs the lexical and vector legs concurrently. Leg
// errors are captured separately so one side failing never cancels
// the other; only context cancellation aborts both.
func (e *Engine) parallelSearch(ctx context.Context, lexQuery, embedQuery string, limit int, filters docstore.Filters) (
	lexHits []*docstore.LexicalHit,
	vecHits []*vectorstore.VectorHit,
	lexErr, vecErr error,
) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := e.lexical.Search(gctx, lexQuery, filters, limit)
		if err != nil {
			lexErr = err
			return nil
		}
		lexHits = hits
		return nil
	})

	g.Go(func() error {
		embedding, err := e.embedder.Embed(gctx, embedQuery)
		if err != nil {
			vecErr = err
			return nil
		}
		hits, err := e.vector.Search(gctx, embedding, limit)
		if err != nil {
			vecErr = err
			return nil
		}
		vecHits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err, err
	}
	return lexHits, vecHits, lexErr, vecErr
}

func (e *Engine) recordMetrics(q string, qt telemetry.QueryType, count int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       q,
		Type:        qt,
		ResultCount: count,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// enrich loads snapshots for the fused candidates and applies filters
// the vector leg could not. Candidates without a snapshot are dropped.
func (e *Engine) enrich(ctx context.Context, fused []*FusedResult, filters docstore.Filters) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return []*SearchResult{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.DocID
	}
	docs, err := e.snapshots.GetBatch(ctx, ids)
	if err != nil {
		return nil, bioerrors.StorageError("load document snapshots", err)
	}

	results := make([]*SearchResult, 0, len(fused))
	for _, f := range fused {
		doc, ok := docs[f.DocID]
		if !ok {
			slog.Warn("snapshot_missing", slog.String("doc_id", f.DocID))
			continue
		}
		if !filters.Match(doc) {
			continue
		}
		results = append(results, &SearchResult{
			Document:      doc,
			LexicalScore:  f.LexicalScore,
			VectorScore:   f.VectorScore,
			CombinedScore: f.CombinedScore,
			FinalScore:    f.CombinedScore,
			MatchedTerms:  f.MatchedTerms,
		})
	}
	return results, nil
}

// rerank refines the relevance order with the cross-encoder. Any
// failure leaves the fused order untouched.
func (e *Engine) rerank(ctx context.Context, q string, results []*SearchResult) {
	if e.reranker == nil || len(results) < 2 {
		return
	}
	if !e.reranker.Available(ctx) {
		slog.Debug("reranker_unavailable")
		return
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = rerankText(r.Document)
	}

	scored, err := e.reranker.Rerank(ctx, q, docs)
	if err != nil {
		slog.Warn("rerank_failed", slog.String("error", err.Error()))
		return
	}

	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(results) {
			continue
		}
		r := results[s.Index]
		r.RerankScore = s.Score
		r.FinalScore = e.blend.CombinedWeight*r.CombinedScore + e.blend.RerankWeight*s.Score
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}

// rerankText is the document text scored by the cross-encoder.
func rerankText(doc *docstore.Document) string {
	if doc.Abstract == "" {
		return doc.Title
	}
	return doc.Title + ". " + doc.Abstract
}

// sortByDate orders results by publication year. Documents without a
// year sort last; ties fall back to the fused score, then ID.
func sortByDate(results []*SearchResult, order SortOrder) {
	sort.Slice(results, func(i, j int) bool {
		yi, yj := results[i].Document.Year, results[j].Document.Year
		switch {
		case yi == nil && yj == nil:
			// fall through to score tiebreak
		case yi == nil:
			return false
		case yj == nil:
			return true
		case *yi != *yj:
			if order == SortDateAsc {
				return *yi < *yj
			}
			return *yi > *yj
		}
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}

// Index adds documents to all three stores: snapshots, lexical index,
// and vector store. Embeddings are computed in batches.
func (e *Engine) Index(ctx context.Context, docs []*docstore.Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if doc.ID == "" {
			return bioerrors.ValidationError("document ID must not be empty", nil)
		}
	}

	if err := e.snapshots.Put(ctx, docs); err != nil {
		return bioerrors.StorageError("store document snapshots", err)
	}
	if err := e.lexical.Index(ctx, docs); err != nil {
		return bioerrors.StorageError("index documents", err)
	}

	for start := 0; start < len(docs); start += e.config.EmbedBatchSize {
		end := start + e.config.EmbedBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = embeddingText(doc)
			ids[i] = doc.ID
		}

		vectors, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return bioerrors.New(bioerrors.ErrCodeEmbeddingFailed, "embed document batch", err)
		}
		if err := e.vector.Add(ctx, ids, vectors); err != nil {
			return bioerrors.StorageError("add document vectors", err)
		}

		slog.Debug("indexed_batch",
			slog.Int("from", start),
			slog.Int("count", len(batch)))
	}

	slog.Info("documents_indexed", slog.Int("count", len(docs)))
	return nil
}

// embeddingText is the text embedded for a document.
func embeddingText(doc *docstore.Document) string {
	if doc.Abstract == "" {
		return doc.Title
	}
	return doc.Title + ". " + doc.Abstract
}

// Delete removes documents from all three stores.
func (e *Engine) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var errs []error
	if err := e.lexical.Delete(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("lexical delete: %w", err))
	}
	if err := e.vector.Delete(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("vector delete: %w", err))
	}
	if err := e.snapshots.Delete(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("snapshot delete: %w", err))
	}
	return errors.Join(errs...)
}

// Document returns a single document snapshot, or a not-found error.
func (e *Engine) Document(ctx context.Context, id string) (*docstore.Document, error) {
	doc, err := e.snapshots.Get(ctx, id)
	if err != nil {
		return nil, bioerrors.StorageError("load document", err)
	}
	if doc == nil {
		return nil, bioerrors.New(bioerrors.ErrCodeDocumentMissing,
			fmt.Sprintf("document %q not found", id), nil)
	}
	return doc, nil
}

// Stats reports index state.
func (e *Engine) Stats(ctx context.Context) (*EngineStats, error) {
	docCount, err := e.lexical.Count()
	if err != nil {
		return nil, bioerrors.StorageError("count indexed documents", err)
	}
	bySource, err := e.snapshots.CountBySource(ctx)
	if err != nil {
		return nil, bioerrors.StorageError("count documents by source", err)
	}
	return &EngineStats{
		DocumentCount:   docCount,
		VectorCount:     e.vector.Count(),
		CountsBySource:  bySource,
		EmbeddingModel:  e.embedder.ModelName(),
		RerankerEnabled: e.reranker != nil,
	}, nil
}

// Close releases all engine resources.
func (e *Engine) Close() error {
	var errs []error
	if e.reranker != nil {
		if err := e.reranker.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.lexical.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.snapshots.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
