package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openbiomed/biosearch/internal/docstore"
	bioerrors "github.com/openbiomed/biosearch/internal/errors"
	"github.com/openbiomed/biosearch/internal/qa"
	"github.com/openbiomed/biosearch/internal/search"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type searchRequest struct {
	Query        string           `json:"query"`
	TopK         int              `json:"top_k,omitempty"`
	Alpha        *float64         `json:"alpha,omitempty"`
	SortBy       string           `json:"sort_by,omitempty"`
	UseReranking *bool            `json:"use_reranking,omitempty"`
	Filters      docstore.Filters `json:"filters,omitempty"`
}

type searchResponse struct {
	Results []*search.SearchResult `json:"results"`
	Count   int                    `json:"count"`
	TookMs  int64                  `json:"took_ms"`
}

type questionRequest struct {
	Question    string           `json:"question"`
	TopK        int              `json:"top_k,omitempty"`
	NumPassages int              `json:"num_passages,omitempty"`
	NumAnswers  int              `json:"num_answers,omitempty"`
	History     []qa.Turn        `json:"history,omitempty"`
	Filters     docstore.Filters `json:"filters,omitempty"`
}

type batchQuestionRequest struct {
	Questions   []string         `json:"questions"`
	TopK        int              `json:"top_k,omitempty"`
	NumPassages int              `json:"num_passages,omitempty"`
	NumAnswers  int              `json:"num_answers,omitempty"`
	Filters     docstore.Filters `json:"filters,omitempty"`
}

type batchQuestionResponse struct {
	Answers []qa.BatchAnswer `json:"answers"`
	TookMs  int64            `json:"took_ms"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	results, err := s.searchSvc.Search(r.Context(), req.Query, search.SearchOptions{
		TopK:         req.TopK,
		Alpha:        req.Alpha,
		SortBy:       search.SortOrder(req.SortBy),
		UseReranking: req.UseReranking,
		Filters:      req.Filters,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Count:   len(results),
		TookMs:  time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	if s.qaSvc == nil {
		writeError(w, r, bioerrors.ServiceError("question answering is not configured", nil))
		return
	}

	var req questionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.qaSvc.Answer(r.Context(), req.Question, qa.QuestionOptions{
		TopK:        req.TopK,
		NumPassages: req.NumPassages,
		NumAnswers:  req.NumAnswers,
		History:     req.History,
		Filters:     req.Filters,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatchQuestion(w http.ResponseWriter, r *http.Request) {
	if s.qaSvc == nil {
		writeError(w, r, bioerrors.ServiceError("question answering is not configured", nil))
		return
	}

	var req batchQuestionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, r, bioerrors.ValidationError("questions must not be empty", nil))
		return
	}

	start := time.Now()
	answers, err := s.qaSvc.AnswerBatch(r.Context(), req.Questions, qa.QuestionOptions{
		TopK:        req.TopK,
		NumPassages: req.NumPassages,
		NumAnswers:  req.NumAnswers,
		Filters:     req.Filters,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchQuestionResponse{
		Answers: answers,
		TookMs:  time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, r, bioerrors.ValidationError("document id is required", nil))
		return
	}

	doc, err := s.searchSvc.Document(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleHealth reports overall status plus per-component availability.
// A stats failure degrades the status rather than erroring, so probes
// still get a body they can inspect.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := map[string]any{
		"question_answering": s.qaSvc != nil,
	}

	stats, err := s.searchSvc.Stats(r.Context())
	if err != nil {
		status = "degraded"
		components["index"] = false
	} else {
		components["index"] = true
		components["documents"] = stats.DocumentCount
		components["vectors"] = stats.VectorCount
		components["embedding_model"] = stats.EmbeddingModel
		components["reranking_enabled"] = stats.RerankerEnabled
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.searchSvc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := map[string]any{"index": stats}
	if s.metrics != nil {
		body["queries"] = s.metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

// decodeBody parses a JSON request body, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, bioerrors.ValidationError("invalid request body: "+err.Error(), err))
		return false
	}
	return true
}

// writeError maps structured errors onto HTTP statuses: validation to
// 400, missing documents to 404, unavailable services to 503,
// everything else to 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := bioerrors.ErrCodeInternal

	var be *bioerrors.BioError
	if errors.As(err, &be) {
		code = be.Code
		switch {
		case bioerrors.IsValidation(err):
			status = http.StatusBadRequest
		case be.Code == bioerrors.ErrCodeDocumentMissing:
			status = http.StatusNotFound
		case be.Code == bioerrors.ErrCodeServiceUnavailable:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= 500 {
		slog.Error("request_failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.String("request_id", RequestID(r.Context())))
	}

	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:      code,
		Message:   err.Error(),
		RequestID: RequestID(r.Context()),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode_response_failed", slog.String("error", err.Error()))
	}
}
