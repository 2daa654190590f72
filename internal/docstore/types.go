// Package docstore provides document storage for biosearch: a Bleve
// lexical index for BM25 retrieval and a SQLite snapshot store for
// full document records.
package docstore

import (
	"context"
)

// SourceType identifies the corpus a document belongs to.
type SourceType string

const (
	SourceLiterature SourceType = "literature"
	SourceTrial      SourceType = "trial"
)

// Document is a biomedical literature article or clinical-trial record.
type Document struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Abstract     string     `json:"abstract"`
	FullText     string     `json:"full_text,omitempty"`
	SourceType   SourceType `json:"source_type"`
	Year         *int       `json:"year,omitempty"`
	ArticleTypes []string   `json:"article_types,omitempty"`
	Keywords     []string   `json:"keywords,omitempty"`
	Authors      []string   `json:"authors,omitempty"`
	Journal      string     `json:"journal,omitempty"`
	URL          string     `json:"url,omitempty"`
	OpenAccess   bool       `json:"open_access"`
}

// HasFullText reports whether the document carries body text beyond
// the abstract.
func (d *Document) HasFullText() bool {
	return d.FullText != ""
}

// Filters restricts retrieval to a corpus subset.
type Filters struct {
	// SourceType limits results to one corpus. Empty means both.
	SourceType SourceType `json:"source_type,omitempty"`

	// YearMin and YearMax bound the publication year (inclusive).
	YearMin *int `json:"year_min,omitempty"`
	YearMax *int `json:"year_max,omitempty"`

	// ArticleTypes limits results to any of the given types.
	ArticleTypes []string `json:"article_types,omitempty"`

	// RequireFullText keeps only documents with body text.
	RequireFullText bool `json:"require_full_text,omitempty"`

	// OpenAccessOnly keeps only open-access documents.
	OpenAccessOnly bool `json:"open_access_only,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.SourceType == "" && f.YearMin == nil && f.YearMax == nil &&
		len(f.ArticleTypes) == 0 && !f.RequireFullText && !f.OpenAccessOnly
}

// Match reports whether a document passes the filters.
// The lexical index applies filters at query time; the vector leg has
// no filter support, so fused results are re-checked against the
// snapshot with this predicate.
func (f Filters) Match(doc *Document) bool {
	if doc == nil {
		return false
	}
	if f.SourceType != "" && doc.SourceType != f.SourceType {
		return false
	}
	if f.YearMin != nil && (doc.Year == nil || *doc.Year < *f.YearMin) {
		return false
	}
	if f.YearMax != nil && (doc.Year == nil || *doc.Year > *f.YearMax) {
		return false
	}
	if len(f.ArticleTypes) > 0 {
		found := false
		for _, want := range f.ArticleTypes {
			for _, have := range doc.ArticleTypes {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	if f.RequireFullText && !doc.HasFullText() {
		return false
	}
	if f.OpenAccessOnly && !doc.OpenAccess {
		return false
	}
	return true
}

// LexicalHit is one BM25 match from the lexical index.
type LexicalHit struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// LexicalIndex is the interface for BM25 retrieval.
type LexicalIndex interface {
	// Index adds or replaces documents in batch.
	Index(ctx context.Context, docs []*Document) error

	// Search returns hits for the query text in BM25 score order.
	// An empty index or empty query returns an empty slice, nil error.
	Search(ctx context.Context, text string, filters Filters, limit int) ([]*LexicalHit, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of indexed documents.
	Count() (int, error)

	// Close releases index resources.
	Close() error
}

// SnapshotStore persists full document records.
type SnapshotStore interface {
	// Put inserts or replaces documents in batch.
	Put(ctx context.Context, docs []*Document) error

	// Get returns one document, or nil if absent.
	Get(ctx context.Context, id string) (*Document, error)

	// GetBatch returns the documents found for the given IDs, keyed by ID.
	GetBatch(ctx context.Context, ids []string) (map[string]*Document, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// CountBySource returns document counts per source type.
	CountBySource(ctx context.Context) (map[SourceType]int, error)

	// Close releases store resources.
	Close() error
}
