package output

import (
	"fmt"
	"strings"

	"github.com/openbiomed/biosearch/internal/qa"
	"github.com/openbiomed/biosearch/internal/search"
)

// RenderResults prints search results as a numbered list.
func (w *Writer) RenderResults(results []*search.SearchResult) {
	if len(results) == 0 {
		w.Warning("no results")
		return
	}

	for i, r := range results {
		doc := r.Document
		year := "n.d."
		if doc.Year != nil {
			year = fmt.Sprintf("%d", *doc.Year)
		}
		w.Heading(fmt.Sprintf("%d. %s (%s, %s)", i+1, doc.Title, doc.SourceType, year))
		w.Detailf("score %.4f  lexical %.4f  vector %.4f", r.FinalScore, r.LexicalScore, r.VectorScore)
		if len(r.MatchedTerms) > 0 {
			w.Detailf("matched: %s", strings.Join(r.MatchedTerms, ", "))
		}
		if doc.Abstract != "" {
			w.Detail(snippet(doc.Abstract, 200))
		}
		w.Newline()
	}
}

// RenderAnswer prints a question-answering response.
func (w *Writer) RenderAnswer(resp *qa.Response) {
	switch resp.Status {
	case qa.StatusNoResults:
		w.Warning("no documents found for this question")
		return
	case qa.StatusNoAnswers:
		w.Warning("documents found, but no confident answer")
		return
	}

	for _, a := range resp.Answers {
		switch a.Type {
		case qa.AnswerGenerated:
			if a.Error != "" {
				w.Errorf("synthesis failed: %s", a.Error)
				continue
			}
			w.Heading("Answer (" + a.Generator + ")")
			w.Plain(a.Text)
			w.Newline()
		case qa.AnswerExtracted:
			w.Plainf("• %s", a.Text)
			w.Detailf("confidence %.3f (%s) from %s", a.Confidence, a.Bucket, a.Title)
		}
	}
}

// snippet shortens text to maxLen characters on a word boundary.
func snippet(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxLen {
		return text
	}
	cut := text[:maxLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
