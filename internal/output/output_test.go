package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/qa"
	"github.com/openbiomed/biosearch/internal/search"
)

func TestWriter_StatusLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Success("indexed")
	w.Warning("slow")
	w.Error("failed")
	w.Detail("fine print")

	out := buf.String()
	assert.Contains(t, out, "✓ indexed")
	assert.Contains(t, out, "! slow")
	assert.Contains(t, out, "✗ failed")
	assert.Contains(t, out, "  fine print")
}

func TestWriter_NoANSIWhenPlain(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)
	w.Heading("title")

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestWriter_Progress(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Progress(5, 10, "halfway")
	assert.Contains(t, buf.String(), "50%")

	buf.Reset()
	w.Progress(10, 10, "done")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestRenderResults(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	year := 2021
	w.RenderResults([]*search.SearchResult{
		{
			Document: &docstore.Document{
				ID:         "d1",
				Title:      "Statin efficacy",
				Abstract:   "A large trial.",
				SourceType: docstore.SourceLiterature,
				Year:       &year,
			},
			FinalScore:   0.91,
			MatchedTerms: []string{"statin"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "1. Statin efficacy (literature, 2021)")
	assert.Contains(t, out, "matched: statin")
}

func TestRenderResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).RenderResults(nil)
	assert.Contains(t, buf.String(), "no results")
}

func TestRenderAnswer(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.RenderAnswer(&qa.Response{
		Status: qa.StatusSuccess,
		Answers: []qa.Answer{
			{Type: qa.AnswerGenerated, Text: "Statins reduce risk [1].", Generator: "groq"},
			{Type: qa.AnswerExtracted, Text: "atorvastatin", Confidence: 0.87, Bucket: qa.BucketHigh, Title: "Trial A"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Answer (groq)")
	assert.Contains(t, out, "Statins reduce risk [1].")
	assert.Contains(t, out, "atorvastatin")
	assert.Contains(t, out, "high")
}

func TestRenderAnswer_NoResults(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).RenderAnswer(&qa.Response{Status: qa.StatusNoResults})
	assert.Contains(t, buf.String(), "no documents")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("short", 50))

	long := snippet("alpha beta gamma delta", 12)
	assert.Equal(t, "alpha beta…", long)
}
