// Package executor runs validated plans against the action service.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nestor-ai/nestor/pkg/action"
	"github.com/nestor-ai/nestor/pkg/models"
)

// Runner dispatches a single action. Implemented by action.Client; tests
// inject deterministic doubles.
type Runner interface {
	Execute(ctx context.Context, a models.Action, dryRun bool) (*action.Result, error)
}

// Executor runs a plan's actions in declared order, one at a time. Each
// action gets its own deadline; exceeding it yields a timeout outcome. A
// non-success outcome of an action marked critical halts further dispatch.
type Executor struct {
	timeout time.Duration
	dryRun  bool
	logger  *slog.Logger
}

// New creates an executor with the given per-action timeout.
func New(timeout time.Duration, dryRun bool) *Executor {
	return &Executor{
		timeout: timeout,
		dryRun:  dryRun,
		logger:  slog.With("component", "executor"),
	}
}

// ExecutePlan runs all actions in plan order and collects their outcomes.
// Outcomes appear in plan order; actions skipped by stop-on-critical are not
// represented. The ambient ctx deadline is honored between actions.
func (e *Executor) ExecutePlan(ctx context.Context, plan *models.Plan, runner Runner) []models.ActionOutcome {
	outcomes := make([]models.ActionOutcome, 0, len(plan.Actions))

	e.logger.Info("Executing plan", "intent", plan.Intent, "actions", len(plan.Actions))

	for i, a := range plan.Actions {
		if ctx.Err() != nil {
			// Request deadline or cancellation; the pipeline reports it.
			break
		}

		e.logger.Info("Executing action",
			"index", i+1, "total", len(plan.Actions), "tool", a.Tool)

		outcome := e.executeOne(ctx, a, runner)
		outcomes = append(outcomes, outcome)

		if outcome.Status != models.OutcomeSuccess && a.Critical {
			e.logger.Error("Critical action failed, stopping execution",
				"tool", a.Tool, "status", outcome.Status)
			break
		}
	}

	return outcomes
}

func (e *Executor) executeOne(ctx context.Context, a models.Action, runner Runner) models.ActionOutcome {
	start := time.Now()

	actionCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := runner.Execute(actionCtx, a, e.dryRun)

	if err != nil {
		// Distinguish the per-action deadline from other failures. The
		// elapsed time is pinned to the configured timeout for timeouts so
		// the outcome reflects the budget, not scheduling jitter.
		if errors.Is(actionCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			e.logger.Error("Action timed out", "tool", a.Tool, "timeout", e.timeout)
			return models.ActionOutcome{
				Action:        a.Tool,
				Status:        models.OutcomeTimeout,
				Error:         "timeout",
				ExecutionTime: e.timeout.Seconds(),
				Timestamp:     models.Now(),
			}
		}

		e.logger.Error("Action failed", "tool", a.Tool, "error", err)
		return models.ActionOutcome{
			Action:        a.Tool,
			Status:        models.OutcomeError,
			Error:         err.Error(),
			ExecutionTime: time.Since(start).Seconds(),
			Timestamp:     models.Now(),
		}
	}

	if result.Status != "success" {
		e.logger.Warn("Action reported failure", "tool", a.Tool, "error", result.Error)
		return models.ActionOutcome{
			Action:        a.Tool,
			Status:        models.OutcomeError,
			Result:        result.Result,
			Error:         result.Error,
			ExecutionTime: time.Since(start).Seconds(),
			Timestamp:     models.Now(),
		}
	}

	return models.ActionOutcome{
		Action:        a.Tool,
		Status:        models.OutcomeSuccess,
		Result:        result.Result,
		ExecutionTime: time.Since(start).Seconds(),
		Timestamp:     models.Now(),
	}
}
