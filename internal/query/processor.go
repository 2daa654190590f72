// Package query normalizes and expands biomedical search queries.
// This addresses vocabulary mismatch where user shorthand (clinical
// abbreviations like "htn" or "mi") doesn't match the terminology used
// in article titles and abstracts.
//
// Example:
//
//	Input:  "HTN treatment"
//	Output: "htn hypertension high blood pressure treatment"
package query

import (
	"strings"
	"unicode"
)

// Default stopwords removed during keyword extraction.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true,
}

// Abbreviations maps common clinical shorthand to its expansions.
// Expansions are appended after the original token so exact matches
// on the abbreviation still rank.
var Abbreviations = map[string][]string{
	"htn":   {"hypertension", "high blood pressure"},
	"dm":    {"diabetes mellitus"},
	"mi":    {"myocardial infarction", "heart attack"},
	"copd":  {"chronic obstructive pulmonary disease"},
	"ckd":   {"chronic kidney disease"},
	"cad":   {"coronary artery disease"},
	"chf":   {"congestive heart failure"},
	"uti":   {"urinary tract infection"},
	"tb":    {"tuberculosis"},
	"hiv":   {"human immunodeficiency virus"},
	"aids":  {"acquired immunodeficiency syndrome"},
	"covid": {"COVID-19", "coronavirus", "SARS-CoV-2"},
}

// ProcessedQuery holds the outputs of the full processing pipeline.
type ProcessedQuery struct {
	Original string   `json:"original"`
	Cleaned  string   `json:"cleaned"`
	Expanded string   `json:"expanded"`
	Keywords []string `json:"keywords"`
}

// Processor cleans queries, expands clinical abbreviations, and
// extracts content keywords.
type Processor struct {
	abbreviations map[string][]string
	maxExpansions int // max expansion terms per abbreviation
}

// ProcessorOption configures the query processor.
type ProcessorOption func(*Processor)

// WithMaxExpansions caps the number of expansion terms added per
// abbreviation.
func WithMaxExpansions(n int) ProcessorOption {
	return func(p *Processor) {
		p.maxExpansions = n
	}
}

// WithCustomAbbreviations adds custom abbreviation mappings on top of
// the built-in clinical table.
func WithCustomAbbreviations(abbrevs map[string][]string) ProcessorOption {
	return func(p *Processor) {
		for k, v := range abbrevs {
			key := strings.ToLower(k)
			p.abbreviations[key] = append(p.abbreviations[key], v...)
		}
	}
}

// NewProcessor creates a query processor with the built-in clinical
// abbreviation table.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		abbreviations: make(map[string][]string),
		maxExpansions: 3,
	}

	for k, v := range Abbreviations {
		p.abbreviations[k] = v
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Clean lowercases the query, strips characters outside letters,
// digits, whitespace, hyphens, and dots, and collapses runs of
// whitespace into single spaces.
func (p *Processor) Clean(raw string) string {
	lower := strings.ToLower(raw)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// ExpandAbbreviations appends expansion terms after each abbreviation
// token in the cleaned query. The original token is kept, duplicates
// are dropped, and token order is otherwise preserved.
func (p *Processor) ExpandAbbreviations(cleaned string) string {
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return cleaned
	}

	seen := make(map[string]bool)
	var out []string
	for _, tok := range tokens {
		if !seen[tok] {
			out = append(out, tok)
			seen[tok] = true
		}

		expansions, ok := p.abbreviations[tok]
		if !ok {
			continue
		}
		added := 0
		for _, exp := range expansions {
			key := strings.ToLower(exp)
			if seen[key] || added >= p.maxExpansions {
				continue
			}
			out = append(out, exp)
			seen[key] = true
			added++
		}
	}

	return strings.Join(out, " ")
}

// Keywords extracts content-bearing tokens from a cleaned query,
// dropping stopwords and tokens of two characters or fewer.
func (p *Processor) Keywords(cleaned string) []string {
	var keywords []string
	for _, tok := range strings.Fields(cleaned) {
		if stopwords[tok] || len(tok) <= 2 {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}

// Process runs the full pipeline: clean, expand, extract keywords.
func (p *Processor) Process(raw string) ProcessedQuery {
	cleaned := p.Clean(raw)
	return ProcessedQuery{
		Original: raw,
		Cleaned:  cleaned,
		Expanded: p.ExpandAbbreviations(cleaned),
		Keywords: p.Keywords(cleaned),
	}
}
