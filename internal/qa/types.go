// Package qa answers biomedical questions over retrieved documents.
// It combines extractive QA (span extraction against passages) with
// generative synthesis through a chain of chat backends.
package qa

import (
	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/search"
)

// Status is the outcome of a question-answering request.
type Status string

const (
	// StatusSuccess means at least one answer was produced.
	StatusSuccess Status = "success"

	// StatusNoResults means retrieval found no documents.
	StatusNoResults Status = "no_results"

	// StatusNoAnswers means documents were found but no answer cleared
	// the confidence threshold and synthesis was unavailable.
	StatusNoAnswers Status = "no_answers"
)

// ConfidenceBucket classifies an extracted answer's confidence.
type ConfidenceBucket string

const (
	BucketHigh    ConfidenceBucket = "high"     // >= 0.8
	BucketMedium  ConfidenceBucket = "medium"   // >= 0.5
	BucketLow     ConfidenceBucket = "low"      // >= 0.2
	BucketVeryLow ConfidenceBucket = "very_low" // below 0.2
)

// BucketFor maps a confidence score to its bucket.
func BucketFor(confidence float64) ConfidenceBucket {
	switch {
	case confidence >= 0.8:
		return BucketHigh
	case confidence >= 0.5:
		return BucketMedium
	case confidence >= 0.2:
		return BucketLow
	default:
		return BucketVeryLow
	}
}

// Passage is a scored snippet of a document sent to the extractor and
// cited by the synthesizer.
type Passage struct {
	DocID      string              `json:"doc_id"`
	Title      string              `json:"title"`
	SourceType docstore.SourceType `json:"source_type"`
	Text       string              `json:"text"`

	// Score ranks passages: the document's final retrieval score for
	// the abstract, discounted for full-text chunks.
	Score float64 `json:"score"`

	// FromFullText marks passages cut from body text rather than the
	// abstract.
	FromFullText bool `json:"from_full_text"`
}

// Turn is one prior exchange in a conversation. Role is "user" or
// "assistant".
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnswerType distinguishes extracted spans from synthesized answers.
type AnswerType string

const (
	AnswerExtracted AnswerType = "extracted"
	AnswerGenerated AnswerType = "generated"
)

// Answer is one answer to a question. Synthesized answers carry the
// generator name; extracted answers carry provenance and confidence.
type Answer struct {
	Type AnswerType `json:"type"`
	Text string     `json:"text"`

	// Extracted answers only.
	Confidence float64             `json:"confidence,omitempty"`
	Bucket     ConfidenceBucket    `json:"bucket,omitempty"`
	DocID      string              `json:"doc_id,omitempty"`
	Title      string              `json:"title,omitempty"`
	SourceType docstore.SourceType `json:"source_type,omitempty"`
	Passage    string              `json:"passage,omitempty"`

	// Generated answers only.
	Generator string `json:"generator,omitempty"`

	// Error is set when synthesis was attempted but failed; the
	// response still succeeds on extracted answers alone.
	Error string `json:"error,omitempty"`
}

// Response is the full result of a question-answering request.
type Response struct {
	Question string `json:"question"`
	Status   Status `json:"status"`

	// Answers holds the synthesized answer first (when synthesis ran),
	// followed by extracted answers in confidence order.
	Answers []Answer `json:"answers"`

	// Results are the retrieved documents the answers draw on.
	Results []*search.SearchResult `json:"results,omitempty"`

	PassageCount int `json:"passage_count"`
}

// BestAnswer returns the top answer, preferring the synthesized one.
// Returns nil when the response has no answers.
func (r *Response) BestAnswer() *Answer {
	if len(r.Answers) == 0 {
		return nil
	}
	return &r.Answers[0]
}
