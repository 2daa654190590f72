package qa

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/openbiomed/biosearch/internal/search"
)

// Passage extraction defaults.
const (
	DefaultPassageMaxLength = 512
	DefaultMaxChunksPerDoc  = 3
	DefaultChunkDiscount    = 0.8
)

// PassageConfig controls how documents are cut into passages.
type PassageConfig struct {
	// MaxLength is the maximum passage length in characters. Passages
	// break at word boundaries.
	MaxLength int

	// MaxChunksPerDoc caps full-text chunks per document.
	MaxChunksPerDoc int

	// ChunkDiscount scales full-text chunk scores relative to the
	// abstract passage of the same document.
	ChunkDiscount float64
}

// DefaultPassageConfig returns the standard passage parameters.
func DefaultPassageConfig() PassageConfig {
	return PassageConfig{
		MaxLength:       DefaultPassageMaxLength,
		MaxChunksPerDoc: DefaultMaxChunksPerDoc,
		ChunkDiscount:   DefaultChunkDiscount,
	}
}

// PassageExtractor cuts retrieved documents into scored passages.
type PassageExtractor struct {
	config PassageConfig
}

// NewPassageExtractor creates a passage extractor. Zero config fields
// fall back to defaults.
func NewPassageExtractor(cfg PassageConfig) *PassageExtractor {
	def := DefaultPassageConfig()
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	if cfg.MaxChunksPerDoc <= 0 {
		cfg.MaxChunksPerDoc = def.MaxChunksPerDoc
	}
	if cfg.ChunkDiscount <= 0 || cfg.ChunkDiscount > 1 {
		cfg.ChunkDiscount = def.ChunkDiscount
	}
	return &PassageExtractor{config: cfg}
}

// Extract builds passages from search results, highest scored first.
//
// Every document contributes its abstract (truncated to MaxLength at a
// word boundary) at the document's final score. Documents whose full
// text is longer than their abstract additionally contribute up to
// MaxChunksPerDoc greedy word-packed chunks at the discounted score,
// so abstracts outrank body chunks of the same document. Full text
// shorter than the abstract adds nothing the abstract does not
// already cover, so it is not chunked.
func (p *PassageExtractor) Extract(results []*search.SearchResult) []Passage {
	var passages []Passage

	for _, r := range results {
		doc := r.Document
		if doc == nil {
			continue
		}

		if doc.Abstract != "" {
			passages = append(passages, Passage{
				DocID:      doc.ID,
				Title:      doc.Title,
				SourceType: doc.SourceType,
				Text:       truncateAtWord(doc.Abstract, p.config.MaxLength),
				Score:      r.FinalScore,
			})
		}

		if len(doc.FullText) > len(doc.Abstract) {
			chunks := chunkWords(doc.FullText, p.config.MaxLength, p.config.MaxChunksPerDoc)
			for _, chunk := range chunks {
				passages = append(passages, Passage{
					DocID:        doc.ID,
					Title:        doc.Title,
					SourceType:   doc.SourceType,
					Text:         chunk,
					Score:        r.FinalScore * p.config.ChunkDiscount,
					FromFullText: true,
				})
			}
		}
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	return passages
}

// truncateAtWord cuts text to at most maxLen bytes, breaking at the
// last word boundary that fits, never inside a multi-byte rune.
func truncateAtWord(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	end := maxLen
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	cut := text[:end]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

// chunkWords greedily packs words into chunks of at most maxLen
// characters, up to maxChunks chunks. A single word longer than
// maxLen becomes its own chunk rather than being split.
func chunkWords(text string, maxLen, maxChunks int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
			if len(chunks) == maxChunks {
				return chunks
			}
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 && len(chunks) < maxChunks {
		chunks = append(chunks, current.String())
	}
	return chunks
}
