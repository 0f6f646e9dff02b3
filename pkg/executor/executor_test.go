package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestor-ai/nestor/pkg/action"
	"github.com/nestor-ai/nestor/pkg/models"
)

type runnerFunc func(ctx context.Context, a models.Action, dryRun bool) (*action.Result, error)

func (f runnerFunc) Execute(ctx context.Context, a models.Action, dryRun bool) (*action.Result, error) {
	return f(ctx, a, dryRun)
}

func okRunner() runnerFunc {
	return func(_ context.Context, a models.Action, _ bool) (*action.Result, error) {
		return &action.Result{Status: "success", Result: a.Tool + " done"}, nil
	}
}

func simplePlan(tools ...string) *models.Plan {
	actions := make([]models.Action, len(tools))
	for i, tool := range tools {
		actions[i] = models.Action{Type: "system_action", Tool: tool, SafetyLevel: models.SafetyLow}
	}
	return &models.Plan{Intent: "test", Actions: actions}
}

func TestExecutePlan_SequentialOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	runner := runnerFunc(func(_ context.Context, a models.Action, _ bool) (*action.Result, error) {
		mu.Lock()
		order = append(order, a.Tool)
		mu.Unlock()
		return &action.Result{Status: "success"}, nil
	})

	e := New(time.Second, false)
	outcomes := e.ExecutePlan(context.Background(), simplePlan("a", "b", "c"), runner)

	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	for i, tool := range []string{"a", "b", "c"} {
		assert.Equal(t, tool, outcomes[i].Action)
		assert.Equal(t, models.OutcomeSuccess, outcomes[i].Status)
		assert.NotEmpty(t, outcomes[i].Timestamp)
	}
}

func TestExecutePlan_Timeout(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, _ models.Action, _ bool) (*action.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	timeout := 20 * time.Millisecond
	e := New(timeout, false)
	outcomes := e.ExecutePlan(context.Background(), simplePlan("slow"), runner)

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.OutcomeTimeout, outcomes[0].Status)
	assert.Equal(t, "timeout", outcomes[0].Error)
	assert.Equal(t, timeout.Seconds(), outcomes[0].ExecutionTime)
}

func TestExecutePlan_StopOnCriticalFailure(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, a models.Action, _ bool) (*action.Result, error) {
		if a.Tool == "boom" {
			return nil, errors.New("exploded")
		}
		return &action.Result{Status: "success"}, nil
	})

	plan := &models.Plan{
		Intent: "test",
		Actions: []models.Action{
			{Type: "system_action", Tool: "first", SafetyLevel: models.SafetyLow},
			{Type: "system_action", Tool: "boom", SafetyLevel: models.SafetyLow, Critical: true},
			{Type: "system_action", Tool: "never", SafetyLevel: models.SafetyLow},
		},
	}

	e := New(time.Second, false)
	outcomes := e.ExecutePlan(context.Background(), plan, runner)

	require.Len(t, outcomes, 2, "action after the failed critical one is skipped")
	assert.Equal(t, models.OutcomeSuccess, outcomes[0].Status)
	assert.Equal(t, models.OutcomeError, outcomes[1].Status)
	assert.Equal(t, "exploded", outcomes[1].Error)
}

func TestExecutePlan_NonCriticalFailureContinues(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, a models.Action, _ bool) (*action.Result, error) {
		if a.Tool == "boom" {
			return &action.Result{Status: "error", Error: "nope"}, nil
		}
		return &action.Result{Status: "success"}, nil
	})

	e := New(time.Second, false)
	outcomes := e.ExecutePlan(context.Background(), simplePlan("a", "boom", "c"), runner)

	require.Len(t, outcomes, 3)
	assert.Equal(t, models.OutcomeSuccess, outcomes[0].Status)
	assert.Equal(t, models.OutcomeError, outcomes[1].Status)
	assert.Equal(t, "nope", outcomes[1].Error)
	assert.Equal(t, models.OutcomeSuccess, outcomes[2].Status)
}

func TestExecutePlan_AmbientCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	runner := runnerFunc(func(_ context.Context, _ models.Action, _ bool) (*action.Result, error) {
		calls++
		cancel() // request dies after the first action
		return &action.Result{Status: "success"}, nil
	})

	e := New(time.Second, false)
	outcomes := e.ExecutePlan(ctx, simplePlan("a", "b", "c"), runner)

	assert.Equal(t, 1, calls)
	require.Len(t, outcomes, 1)
}

func TestExecutePlan_DryRunForwarded(t *testing.T) {
	var sawDryRun bool
	runner := runnerFunc(func(_ context.Context, _ models.Action, dryRun bool) (*action.Result, error) {
		sawDryRun = dryRun
		return &action.Result{Status: "success"}, nil
	})

	e := New(time.Second, true)
	e.ExecutePlan(context.Background(), simplePlan("a"), runner)

	assert.True(t, sawDryRun)
}
