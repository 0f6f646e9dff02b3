// Package pipeline implements the request processing engine: retrieve
// context, plan, validate, execute, memorize, respond.
//
// Process never panics and never returns nil: every failure mode collapses
// into a PipelineResponse whose Status and Error/Reason fields tell the
// caller what happened.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nestor-ai/nestor/pkg/config"
	"github.com/nestor-ai/nestor/pkg/executor"
	"github.com/nestor-ai/nestor/pkg/llm"
	"github.com/nestor-ai/nestor/pkg/memory"
	"github.com/nestor-ai/nestor/pkg/models"
	"github.com/nestor-ai/nestor/pkg/planner"
	"github.com/nestor-ai/nestor/pkg/safety"
)

// Pipeline error codes carried on error responses.
const (
	ErrCodeLLMUnavailable   = "llm_unavailable"
	ErrCodeDeadlineExceeded = "deadline_exceeded"
	ErrCodeInternal         = "internal"
)

// Generator produces LLM completions. Implemented by llm.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts *llm.Options) (string, error)
}

// Memorizer is the vector memory surface the pipeline needs. Implemented by
// memory.Client.
type Memorizer interface {
	Search(ctx context.Context, query string, limit int) []models.MemoryHit
	Store(ctx context.Context, entry memory.Entry) bool
}

// Recorder receives every finished response, typically for the audit trail.
type Recorder interface {
	Record(resp *models.PipelineResponse)
}

// Observer receives counters for finished responses and action outcomes.
type Observer interface {
	ObserveResponse(status models.ResponseStatus)
	ObserveOutcome(status models.OutcomeStatus)
}

// Engine wires the pipeline stages together. Safe for concurrent use: all
// mutable state lives in the request scope.
type Engine struct {
	cfg          *config.Config
	llm          Generator
	memory       Memorizer
	validator    *safety.Validator
	executor     *executor.Executor
	runner       executor.Runner
	systemPrompt string
	recorder     Recorder
	observer     Observer
	logger       *slog.Logger
}

// NewEngine assembles the pipeline from its collaborators.
func NewEngine(cfg *config.Config, gen Generator, mem Memorizer, validator *safety.Validator, exec *executor.Executor, runner executor.Runner, systemPrompt string) *Engine {
	return &Engine{
		cfg:          cfg,
		llm:          gen,
		memory:       mem,
		validator:    validator,
		executor:     exec,
		runner:       runner,
		systemPrompt: systemPrompt,
		logger:       slog.With("component", "pipeline"),
	}
}

// SetRecorder attaches an audit recorder. Optional.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// SetObserver attaches a metrics observer. Optional.
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// Process runs one request through the full pipeline and returns its single
// terminal response.
func (e *Engine) Process(ctx context.Context, req models.Request) (resp *models.PipelineResponse) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	// A bug anywhere in the stages must not take down the caller's
	// connection; it becomes an internal error response.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Pipeline panic recovered", "request_id", req.ID, "panic", r)
			resp = e.finish(&models.PipelineResponse{
				RequestID: req.ID,
				Status:    models.StatusError,
				Error:     ErrCodeInternal,
				Timestamp: models.Now(),
			})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	e.logger.Info("Processing request", "request_id", req.ID, "type", req.Kind)

	// Stage 1: retrieve context. Best-effort; a cold memory service just
	// means planning without history.
	memCtx := memoryContext{
		RelevantMemories: e.memory.Search(ctx, req.Content, memory.DefaultSearchLimit),
		UserPreferences:  map[string]any{},
	}
	if memCtx.RelevantMemories == nil {
		memCtx.RelevantMemories = []models.MemoryHit{}
	}
	if prefs, ok := req.Context["user_preferences"].(map[string]any); ok {
		memCtx.UserPreferences = prefs
	}

	// Stage 2: plan.
	prompt := buildPrompt(e.systemPrompt, req.Content, memCtx, e.cfg.AllowedActions, req.Context)

	text, err := e.llm.Generate(ctx, prompt, nil)
	if err != nil {
		return e.finish(e.errorResponse(req.ID, classifyLLMError(ctx, err)))
	}

	plan := planner.Parse(text)
	if plan.IsError() {
		e.logger.Warn("Plan parsing failed", "request_id", req.ID, "reason", plan.Error)
		resp := e.errorResponse(req.ID, plan.Error)
		resp.Plan = plan
		return e.finish(resp)
	}

	// Stage 3: validate. A rejected plan is a successful refusal, not an
	// error; nothing is dispatched and nothing is memorized.
	verdict := e.validator.Validate(plan)
	if !verdict.Safe {
		e.logger.Warn("Plan rejected", "request_id", req.ID, "reason", verdict.Reason)
		return e.finish(&models.PipelineResponse{
			RequestID: req.ID,
			Status:    models.StatusRejected,
			Plan:      plan,
			Reason:    verdict.Reason,
			Timestamp: models.Now(),
		})
	}
	if verdict.RequiresConfirmation {
		plan.RequiresConfirmation = true
	}

	// Stage 4: execute.
	outcomes := e.executor.ExecutePlan(ctx, plan, e.runner)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		resp := e.errorResponse(req.ID, ErrCodeDeadlineExceeded)
		resp.Plan = plan
		resp.Results = outcomes
		return e.finish(resp)
	}

	succeeded := 0
	for _, o := range outcomes {
		if o.Status == models.OutcomeSuccess {
			succeeded++
		}
	}

	status := models.StatusSuccess
	if succeeded < len(outcomes) {
		status = models.StatusPartial
	}

	resp = &models.PipelineResponse{
		RequestID: req.ID,
		Status:    status,
		Plan:      plan,
		Results:   outcomes,
		Summary:   fmt.Sprintf("Executed %d/%d actions successfully.", succeeded, len(outcomes)),
		Timestamp: models.Now(),
	}

	// Stage 5: memorize. Fire-and-forget on a detached context so a slow
	// vector store never delays the response.
	storeCtx := context.WithoutCancel(ctx)
	go e.memorize(storeCtx, req, plan, outcomes)

	e.logger.Info("Request processed",
		"request_id", req.ID, "status", status, "actions", len(outcomes))
	return e.finish(resp)
}

// memorize persists the interaction. Failures are logged by the client.
func (e *Engine) memorize(ctx context.Context, req models.Request, plan *models.Plan, outcomes []models.ActionOutcome) {
	metadata := map[string]any{
		"request_id": req.ID,
		"intent":     plan.Intent,
		"timestamp":  models.Now(),
	}
	// The vector store wants scalar metadata values; structured fields go
	// in as JSON strings.
	if data, err := json.Marshal(plan); err == nil {
		metadata["plan"] = string(data)
	}
	if data, err := json.Marshal(outcomes); err == nil {
		metadata["results"] = string(data)
	}

	e.memory.Store(ctx, memory.Entry{
		RequestID: req.ID,
		Content:   req.Content,
		Metadata:  metadata,
	})
}

func (e *Engine) errorResponse(requestID, code string) *models.PipelineResponse {
	return &models.PipelineResponse{
		RequestID: requestID,
		Status:    models.StatusError,
		Error:     code,
		Timestamp: models.Now(),
	}
}

// finish is the single exit point: every terminal response passes through it
// so audit and metrics see exactly one event per request.
func (e *Engine) finish(resp *models.PipelineResponse) *models.PipelineResponse {
	if e.recorder != nil {
		e.recorder.Record(resp)
	}
	if e.observer != nil {
		e.observer.ObserveResponse(resp.Status)
		for _, o := range resp.Results {
			e.observer.ObserveOutcome(o.Status)
		}
	}
	return resp
}

// classifyLLMError maps a generation failure to a pipeline error code.
func classifyLLMError(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeDeadlineExceeded
	}
	return ErrCodeLLMUnavailable
}
