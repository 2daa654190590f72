package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/output"
)

func newIngestCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index documents into the search engine",
		Long: `Read biomedical documents from JSON or JSONL files and index them
for hybrid retrieval.

A .jsonl file holds one document object per line; a .json file holds
an array of document objects. Each document needs at minimum an "id",
"title", and "source_type" ("literature" or "trial"); "abstract",
"full_text", "year", and the other metadata fields are optional.

Re-ingesting an existing ID replaces the document.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := output.New(os.Stdout)

			var docs []*docstore.Document
			for _, path := range args {
				loaded, err := loadDocuments(path)
				if err != nil {
					return err
				}
				out.Detailf("%s: %d documents", filepath.Base(path), len(loaded))
				docs = append(docs, loaded...)
			}
			if len(docs) == 0 {
				out.Warning("nothing to ingest")
				return nil
			}

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			indexed := 0
			for i := 0; i < len(docs); i += batchSize {
				end := min(i+batchSize, len(docs))
				if err := a.engine.Index(ctx, docs[i:end]); err != nil {
					return fmt.Errorf("failed at document %d: %w", i, err)
				}
				indexed = end
				out.Progress(indexed, len(docs), "indexing")
			}

			if err := a.saveVectors(); err != nil {
				return fmt.Errorf("failed to save vector index: %w", err)
			}

			out.Successf("indexed %d documents in %s", indexed, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "Documents indexed per batch")

	return cmd
}

// loadDocuments reads one file of documents, JSONL or a JSON array.
func loadDocuments(path string) ([]*docstore.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return loadJSONL(f, path)
	}

	var docs []*docstore.Document
	if err := json.NewDecoder(f).Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return docs, nil
}

func loadJSONL(f *os.File, path string) ([]*docstore.Document, error) {
	var docs []*docstore.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc docstore.Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		docs = append(docs, &doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return docs, nil
}
