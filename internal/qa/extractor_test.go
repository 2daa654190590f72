package qa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiomed/biosearch/internal/docstore"
)

func passage(docID, text string, score float64) Passage {
	return Passage{
		DocID:      docID,
		Title:      "title " + docID,
		SourceType: docstore.SourceLiterature,
		Text:       text,
		Score:      score,
	}
}

// newExtractorServer answers each context with the given spans in
// order, one span per passage per request.
func newExtractorServer(t *testing.T, spans map[string]extractedSpan) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		answers := make([]extractedSpan, len(req.Contexts))
		for i, c := range req.Contexts {
			answers[i] = spans[c]
		}
		require.NoError(t, json.NewEncoder(w).Encode(extractResponse{Answers: answers}))
	})
	return httptest.NewServer(mux)
}

func TestHTTPExtractor_Extract(t *testing.T) {
	srv := newExtractorServer(t, map[string]extractedSpan{
		"ctx one": {Answer: "lisinopril", Score: 0.9},
		"ctx two": {Answer: "amlodipine", Score: 0.4},
	})
	defer srv.Close()

	e, err := NewHTTPExtractor(context.Background(), ExtractorConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer e.Close()

	answers, err := e.Extract(context.Background(), "first line treatment?", []Passage{
		passage("d2", "ctx two", 0.5),
		passage("d1", "ctx one", 0.9),
	})
	require.NoError(t, err)
	require.Len(t, answers, 2)

	// Sorted by confidence descending.
	assert.Equal(t, "lisinopril", answers[0].Text)
	assert.Equal(t, BucketHigh, answers[0].Bucket)
	assert.Equal(t, "d1", answers[0].DocID)
	assert.Equal(t, "amlodipine", answers[1].Text)
	assert.Equal(t, BucketLow, answers[1].Bucket)
}

func TestHTTPExtractor_DropsLowConfidenceAndEmpty(t *testing.T) {
	srv := newExtractorServer(t, map[string]extractedSpan{
		"good":      {Answer: "metformin", Score: 0.7},
		"empty":     {Answer: "   ", Score: 0.9},
		"below-min": {Answer: "noise", Score: 0.001},
	})
	defer srv.Close()

	e, err := NewHTTPExtractor(context.Background(), ExtractorConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer e.Close()

	answers, err := e.Extract(context.Background(), "q", []Passage{
		passage("a", "good", 1),
		passage("b", "empty", 1),
		passage("c", "below-min", 1),
	})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "metformin", answers[0].Text)
}

func TestHTTPExtractor_CapsPassages(t *testing.T) {
	var received int
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		received += len(req.Contexts)
		answers := make([]extractedSpan, len(req.Contexts))
		_ = json.NewEncoder(w).Encode(extractResponse{Answers: answers})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, err := NewHTTPExtractor(context.Background(), ExtractorConfig{Endpoint: srv.URL, MaxPassages: 3})
	require.NoError(t, err)
	defer e.Close()

	var passages []Passage
	for i := 0; i < 10; i++ {
		passages = append(passages, passage("d", "text", 1))
	}
	_, err = e.Extract(context.Background(), "q", passages)
	require.NoError(t, err)
	assert.Equal(t, 3, received)
}

func TestHTTPExtractor_ServerErrorFailsCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/extract", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model error", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, err := NewHTTPExtractor(context.Background(), ExtractorConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Extract(context.Background(), "q", []Passage{passage("a", "text", 1)})
	assert.Error(t, err)
}

func TestHTTPExtractor_EmptyPassages(t *testing.T) {
	e, err := NewHTTPExtractor(context.Background(), ExtractorConfig{
		Endpoint:        "http://127.0.0.1:1",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	answers, err := e.Extract(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestNewHTTPExtractor_MissingEndpoint(t *testing.T) {
	_, err := NewHTTPExtractor(context.Background(), ExtractorConfig{})
	assert.Error(t, err)
}
