package qa

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/openbiomed/biosearch/internal/docstore"
	bioerrors "github.com/openbiomed/biosearch/internal/errors"
	"github.com/openbiomed/biosearch/internal/search"
	"github.com/openbiomed/biosearch/internal/telemetry"
)

// Orchestrator defaults.
const (
	DefaultQuestionTopK   = 10
	DefaultPromptPassages = 5
	DefaultBatchWorkers   = 4
)

// Searcher is the retrieval surface the orchestrator depends on.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error)
}

// QuestionOptions configures one question.
type QuestionOptions struct {
	// TopK is how many documents retrieval returns (default: 10).
	TopK int

	// NumPassages caps how many top passages feed the synthesis
	// prompt for this request (default from config).
	NumPassages int

	// NumAnswers caps extracted answers in the response. 0 means no
	// cap. The synthesized answer does not count against it.
	NumAnswers int

	// History is the prior conversation, oldest first, folded into
	// the synthesis prompt.
	History []Turn

	// Filters restricts retrieval to a corpus subset.
	Filters docstore.Filters
}

// OrchestratorConfig holds orchestrator tuning parameters.
type OrchestratorConfig struct {
	// TopK is the default retrieval depth.
	TopK int

	// PromptPassages is how many top passages the synthesis prompt
	// includes.
	PromptPassages int

	// BatchWorkers sizes the worker pool for batch questions.
	BatchWorkers int
}

// DefaultOrchestratorConfig returns the default tuning.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TopK:           DefaultQuestionTopK,
		PromptPassages: DefaultPromptPassages,
		BatchWorkers:   DefaultBatchWorkers,
	}
}

// Orchestrator answers questions: retrieve, cut passages, extract
// spans, and synthesize. Extraction always runs, even when synthesis
// succeeds, so every response carries span-level provenance.
type Orchestrator struct {
	searcher  Searcher
	passages  *PassageExtractor
	extractor AnswerExtractor
	chain     *Chain
	metrics   *telemetry.QueryMetrics
	config    OrchestratorConfig
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithExtractor sets the span-extraction backend.
func WithExtractor(e AnswerExtractor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.extractor = e
	}
}

// WithGeneratorChain sets the synthesis backends.
func WithGeneratorChain(c *Chain) OrchestratorOption {
	return func(o *Orchestrator) {
		o.chain = c
	}
}

// WithQueryMetrics sets an optional metrics collector.
func WithQueryMetrics(m *telemetry.QueryMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates a QA orchestrator. The searcher and passage
// extractor are required; extraction and synthesis backends are
// optional and degrade gracefully when absent.
func NewOrchestrator(searcher Searcher, passages *PassageExtractor, cfg OrchestratorConfig, opts ...OrchestratorOption) (*Orchestrator, error) {
	if searcher == nil {
		return nil, bioerrors.ValidationError("searcher is required", nil)
	}
	if passages == nil {
		passages = NewPassageExtractor(DefaultPassageConfig())
	}
	def := DefaultOrchestratorConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.PromptPassages <= 0 {
		cfg.PromptPassages = def.PromptPassages
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = def.BatchWorkers
	}

	o := &Orchestrator{
		searcher: searcher,
		passages: passages,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Answer runs the full pipeline for one question.
//
// Synthesis failure never fails the request: the response carries a
// structured error answer alongside whatever extraction produced.
func (o *Orchestrator) Answer(ctx context.Context, question string, opts QuestionOptions) (*Response, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, bioerrors.New(bioerrors.ErrCodeQuestionEmpty, "question must not be empty", nil)
	}
	if opts.TopK <= 0 {
		opts.TopK = o.config.TopK
	}
	if opts.NumPassages <= 0 {
		opts.NumPassages = o.config.PromptPassages
	}

	results, err := o.searcher.Search(ctx, question, search.SearchOptions{
		TopK:    opts.TopK,
		Filters: opts.Filters,
	})
	if err != nil {
		return nil, bioerrors.New(bioerrors.ErrCodeQAFailed, "retrieval failed", err)
	}
	if len(results) == 0 {
		o.record(question, 0, time.Since(start))
		return &Response{
			Question: question,
			Status:   StatusNoResults,
			Answers:  []Answer{},
		}, nil
	}

	passages := o.passages.Extract(results)

	extracted := o.extract(ctx, question, passages)
	if opts.NumAnswers > 0 && len(extracted) > opts.NumAnswers {
		extracted = extracted[:opts.NumAnswers]
	}
	answers := o.synthesize(ctx, question, passages, extracted, opts)

	status := StatusNoAnswers
	for _, a := range answers {
		if a.Text != "" {
			status = StatusSuccess
			break
		}
	}

	o.record(question, len(answers), time.Since(start))
	return &Response{
		Question:     question,
		Status:       status,
		Answers:      answers,
		Results:      results,
		PassageCount: len(passages),
	}, nil
}

// extract runs span extraction. Failures degrade to no extracted
// answers with a warning.
func (o *Orchestrator) extract(ctx context.Context, question string, passages []Passage) []Answer {
	if o.extractor == nil || len(passages) == 0 {
		return nil
	}
	answers, err := o.extractor.Extract(ctx, question, passages)
	if err != nil {
		slog.Warn("extraction_failed",
			slog.String("question", question),
			slog.String("error", err.Error()))
		return nil
	}
	return answers
}

// synthesize prepends a generated answer to the extracted ones. When
// generation fails, a structured error answer takes its place.
func (o *Orchestrator) synthesize(ctx context.Context, question string, passages []Passage, extracted []Answer, opts QuestionOptions) []Answer {
	if o.chain == nil || !o.chain.Available(ctx) || len(passages) == 0 {
		return extracted
	}

	promptPassages := passages
	if len(promptPassages) > opts.NumPassages {
		promptPassages = promptPassages[:opts.NumPassages]
	}

	text, generator, err := o.chain.Generate(ctx, systemPrompt, buildPrompt(question, promptPassages, opts.History))
	if err != nil {
		slog.Warn("synthesis_failed",
			slog.String("question", question),
			slog.String("error", err.Error()))
		return append([]Answer{{
			Type:  AnswerGenerated,
			Error: err.Error(),
		}}, extracted...)
	}

	return append([]Answer{{
		Type:      AnswerGenerated,
		Text:      text,
		Generator: generator,
	}}, extracted...)
}

func (o *Orchestrator) record(question string, answers int, latency time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.Record(telemetry.QueryEvent{
		Query:       question,
		Type:        telemetry.QueryTypeQuestion,
		ResultCount: answers,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// BatchAnswer is one entry of a batch response. Exactly one of
// Response and Error is set.
type BatchAnswer struct {
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// AnswerBatch answers questions concurrently on a bounded worker
// pool. Questions are isolated: one failing never affects the others,
// and results come back in input order.
func (o *Orchestrator) AnswerBatch(ctx context.Context, questions []string, opts QuestionOptions) ([]BatchAnswer, error) {
	if len(questions) == 0 {
		return []BatchAnswer{}, nil
	}

	pool, err := ants.NewPool(o.config.BatchWorkers)
	if err != nil {
		return nil, bioerrors.InternalError("create batch worker pool", err)
	}
	defer pool.Release()

	out := make([]BatchAnswer, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			resp, err := o.Answer(ctx, q, opts)
			if err != nil {
				out[i] = BatchAnswer{Error: err.Error()}
				return
			}
			out[i] = BatchAnswer{Response: resp}
		})
		if submitErr != nil {
			wg.Done()
			out[i] = BatchAnswer{Error: submitErr.Error()}
		}
	}
	wg.Wait()

	return out, nil
}
