package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openbiomed/biosearch/internal/config"
	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/embed"
	"github.com/openbiomed/biosearch/internal/qa"
	"github.com/openbiomed/biosearch/internal/query"
	"github.com/openbiomed/biosearch/internal/search"
	"github.com/openbiomed/biosearch/internal/telemetry"
	"github.com/openbiomed/biosearch/internal/vectorstore"
)

// On-disk layout inside the data directory.
const (
	lexicalIndexName = "lexical.bleve"
	snapshotDBName   = "snapshots.db"
	vectorIndexName  = "vectors.hnsw"
)

// app holds the wired engine and everything that needs explicit
// teardown. Built once per command invocation.
type app struct {
	cfg        *config.Config
	engine     *search.Engine
	metrics    *telemetry.QueryMetrics
	vector     *vectorstore.HNSWStore
	vectorPath string
	lock       *docstore.IndexLock
}

// openApp loads configuration and opens the stores. When exclusive is
// set the data directory lock is acquired; serve and ingest hold it so
// two processes never mutate the indexes concurrently.
func openApp(ctx context.Context, exclusive bool) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	a := &app{cfg: cfg}

	if exclusive {
		lock := docstore.NewIndexLock(dataDir)
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("another biosearch process holds %s", dataDir)
		}
		a.lock = lock
	}

	engine, err := a.buildEngine(ctx, dataDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine
	return a, nil
}

func (a *app) buildEngine(ctx context.Context, dataDir string) (*search.Engine, error) {
	cfg := a.cfg

	embedder, err := embed.NewFromConfig(cfg.Embeddings, slog.Default())
	if err != nil {
		return nil, err
	}

	lexical, err := docstore.NewBleveIndex(filepath.Join(dataDir, lexicalIndexName))
	if err != nil {
		embedder.Close()
		return nil, err
	}

	snapshots, err := docstore.NewSQLiteSnapshotStore(filepath.Join(dataDir, snapshotDBName))
	if err != nil {
		embedder.Close()
		lexical.Close()
		return nil, err
	}

	vector, vectorPath, err := openVectorStore(dataDir, cfg, embedder)
	if err != nil {
		embedder.Close()
		lexical.Close()
		snapshots.Close()
		return nil, err
	}
	a.vector = vector
	a.vectorPath = vectorPath

	a.metrics = telemetry.NewQueryMetrics()

	opts := []search.EngineOption{
		search.WithQueryProcessor(query.NewProcessor()),
		search.WithMetrics(a.metrics),
	}

	if cfg.Reranker.Enabled {
		reranker, err := search.NewHTTPReranker(ctx, search.HTTPRerankerConfig{
			Endpoint:  cfg.Reranker.Endpoint,
			BatchSize: cfg.Reranker.BatchSize,
			Timeout:   cfg.Reranker.Timeout,
		})
		if err != nil {
			slog.Warn("reranker_unavailable", slog.String("error", err.Error()))
		} else {
			blend := search.RerankerBlend{
				CombinedWeight: cfg.Reranker.CombinedWeight,
				RerankWeight:   cfg.Reranker.RerankWeight,
			}
			opts = append(opts, search.WithReranker(reranker, blend))
		}
	}

	return search.NewEngine(lexical, vector, embedder, snapshots, search.EngineConfig{
		Alpha:               cfg.Search.Alpha,
		TopK:                cfg.Search.TopK,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		EmbedBatchSize:      cfg.Embeddings.BatchSize,
	}, opts...)
}

// openVectorStore loads the persisted HNSW graph when one exists,
// otherwise creates an empty store sized to the embedder.
func openVectorStore(dataDir string, cfg *config.Config, embedder embed.Embedder) (*vectorstore.HNSWStore, string, error) {
	path := filepath.Join(dataDir, vectorIndexName)

	dims := cfg.Embeddings.Dimensions
	if dims <= 0 {
		dims = embedder.Dimensions()
	}

	if _, err := os.Stat(path); err == nil {
		stored, err := vectorstore.ReadStoredDimensions(path)
		if err != nil {
			return nil, "", err
		}
		if stored != dims {
			return nil, "", fmt.Errorf(
				"vector index has %d dimensions but embedder %q produces %d; re-ingest with the current embedder",
				stored, embedder.ModelName(), dims)
		}
		store, err := vectorstore.NewHNSWStore(vectorstore.DefaultConfig(stored))
		if err != nil {
			return nil, "", err
		}
		if err := store.Load(path); err != nil {
			return nil, "", err
		}
		return store, path, nil
	}

	store, err := vectorstore.NewHNSWStore(vectorstore.DefaultConfig(dims))
	if err != nil {
		return nil, "", err
	}
	return store, path, nil
}

// newOrchestrator wires the QA pipeline on top of the engine.
// Extraction and synthesis backends are optional.
func (a *app) newOrchestrator(ctx context.Context) (*qa.Orchestrator, error) {
	cfg := a.cfg

	passages := qa.NewPassageExtractor(qa.PassageConfig{
		MaxLength:       cfg.Passages.MaxLength,
		MaxChunksPerDoc: cfg.Passages.MaxChunksPerDoc,
		ChunkDiscount:   cfg.Passages.ChunkDiscount,
	})

	var opts []qa.OrchestratorOption
	if cfg.Extractor.Endpoint != "" {
		extractor, err := qa.NewHTTPExtractor(ctx, qa.ExtractorConfig{
			Endpoint:      cfg.Extractor.Endpoint,
			Timeout:       cfg.Extractor.Timeout,
			MinConfidence: cfg.Extractor.MinConfidence,
			MaxPassages:   cfg.Extractor.MaxPassages,
		})
		if err != nil {
			slog.Warn("extractor_unavailable", slog.String("error", err.Error()))
		} else {
			opts = append(opts, qa.WithExtractor(extractor))
		}
	}
	if len(cfg.Generators) > 0 {
		opts = append(opts, qa.WithGeneratorChain(qa.NewChain(cfg.Generators)))
	}
	if a.metrics != nil {
		opts = append(opts, qa.WithQueryMetrics(a.metrics))
	}

	return qa.NewOrchestrator(a.engine, passages, qa.OrchestratorConfig{
		TopK: cfg.Search.TopK,
	}, opts...)
}

// saveVectors persists the HNSW graph. Call after mutating the index.
func (a *app) saveVectors() error {
	if a.vector == nil {
		return nil
	}
	return a.vector.Save(a.vectorPath)
}

// Close releases stores and the directory lock.
func (a *app) Close() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			slog.Warn("engine_close_failed", slog.String("error", err.Error()))
		}
	}
	if a.vector != nil {
		_ = a.vector.Close()
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			slog.Warn("lock_release_failed", slog.String("error", err.Error()))
		}
	}
}
