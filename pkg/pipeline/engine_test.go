package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestor-ai/nestor/pkg/action"
	"github.com/nestor-ai/nestor/pkg/config"
	"github.com/nestor-ai/nestor/pkg/executor"
	"github.com/nestor-ai/nestor/pkg/llm"
	"github.com/nestor-ai/nestor/pkg/memory"
	"github.com/nestor-ai/nestor/pkg/models"
	"github.com/nestor-ai/nestor/pkg/planner"
	"github.com/nestor-ai/nestor/pkg/safety"
)

type genFunc func(ctx context.Context, prompt string, opts *llm.Options) (string, error)

func (f genFunc) Generate(ctx context.Context, prompt string, opts *llm.Options) (string, error) {
	return f(ctx, prompt, opts)
}

type memStub struct {
	mu     sync.Mutex
	hits   []models.MemoryHit
	stored []memory.Entry
}

func (m *memStub) Search(context.Context, string, int) []models.MemoryHit { return m.hits }

func (m *memStub) Store(_ context.Context, e memory.Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, e)
	return true
}

func (m *memStub) storedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

type runnerFunc func(ctx context.Context, a models.Action, dryRun bool) (*action.Result, error)

func (f runnerFunc) Execute(ctx context.Context, a models.Action, dryRun bool) (*action.Result, error) {
	return f(ctx, a, dryRun)
}

func okRunner(calls *[]string, mu *sync.Mutex) runnerFunc {
	return func(_ context.Context, a models.Action, _ bool) (*action.Result, error) {
		if calls != nil {
			mu.Lock()
			*calls = append(*calls, a.Tool)
			mu.Unlock()
		}
		return &action.Result{Status: "success"}, nil
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedActions:       []string{"open_app", "search_web", "send_notification"},
		EnableSandbox:        true,
		MaxConcurrentActions: 5,
		ActionTimeout:        time.Second,
		RequestTimeout:       2 * time.Second,
	}
}

func testEngine(cfg *config.Config, gen Generator, mem Memorizer, runner executor.Runner) *Engine {
	v := safety.NewValidator(cfg.AllowedActions, cfg.EnableSandbox, cfg.MaxConcurrentActions, safety.DefaultPolicy())
	exec := executor.New(cfg.ActionTimeout, false)
	return NewEngine(cfg, gen, mem, v, exec, runner, DefaultSystemPrompt)
}

func planText(tools ...string) string {
	actions := ""
	for i, tool := range tools {
		if i > 0 {
			actions += ","
		}
		actions += fmt.Sprintf(`{"type": "system_action", "tool": %q, "safety_level": "low"}`, tool)
	}
	return fmt.Sprintf(`{"intent": "do the thing", "actions": [%s]}`, actions)
}

func staticGen(text string) genFunc {
	return func(context.Context, string, *llm.Options) (string, error) { return text, nil }
}

func TestProcess_Success(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	mem := &memStub{}
	e := testEngine(testConfig(), staticGen(planText("open_app", "search_web")), mem, okRunner(&calls, &mu))

	resp := e.Process(context.Background(), models.Request{Content: "open the browser and search"})

	require.NotNil(t, resp)
	assert.Equal(t, models.StatusSuccess, resp.Status)
	assert.NotEmpty(t, resp.RequestID, "missing request id is generated")
	require.NotNil(t, resp.Plan)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Executed 2/2 actions successfully.", resp.Summary)
	assert.Equal(t, []string{"open_app", "search_web"}, calls)

	// Memorization is fire-and-forget; wait for it.
	require.Eventually(t, func() bool { return mem.storedCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, resp.RequestID, mem.stored[0].RequestID)
	assert.Equal(t, "open the browser and search", mem.stored[0].Content)
}

func TestProcess_EmptyPlan(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	mem := &memStub{}
	e := testEngine(testConfig(), staticGen(planText()), mem, okRunner(&calls, &mu))

	resp := e.Process(context.Background(), models.Request{Content: "just chatting"})

	assert.Equal(t, models.StatusSuccess, resp.Status, "a plan with no actions is a successful no-op")
	assert.Empty(t, resp.Results)
	assert.Equal(t, "Executed 0/0 actions successfully.", resp.Summary)
	assert.Empty(t, calls, "nothing is dispatched")

	require.Eventually(t, func() bool { return mem.storedCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "just chatting", mem.stored[0].Content)
}

func TestProcess_PreservesRequestID(t *testing.T) {
	e := testEngine(testConfig(), staticGen(planText("open_app")), &memStub{}, okRunner(nil, nil))

	resp := e.Process(context.Background(), models.Request{ID: "req-42", Content: "hello"})
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestProcess_MemoryContextInPrompt(t *testing.T) {
	var captured string
	gen := genFunc(func(_ context.Context, prompt string, _ *llm.Options) (string, error) {
		captured = prompt
		return planText("open_app"), nil
	})
	mem := &memStub{hits: []models.MemoryHit{{Content: "prefers dark mode", Metadata: map[string]any{}}}}
	e := testEngine(testConfig(), gen, mem, okRunner(nil, nil))

	e.Process(context.Background(), models.Request{
		Content: "open settings",
		Context: map[string]any{"user_preferences": map[string]any{"theme": "dark"}},
	})

	assert.Contains(t, captured, "prefers dark mode")
	assert.Contains(t, captured, `"theme": "dark"`)
	assert.Contains(t, captured, "open settings")
}

func TestProcess_RejectedPlan(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	mem := &memStub{}
	e := testEngine(testConfig(), staticGen(planText("file_delete")), mem, okRunner(&calls, &mu))

	resp := e.Process(context.Background(), models.Request{Content: "delete everything"})

	assert.Equal(t, models.StatusRejected, resp.Status)
	assert.Equal(t, "'file_delete' not allowed", resp.Reason)
	assert.Empty(t, resp.Results)
	assert.Empty(t, calls, "nothing is dispatched for a rejected plan")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mem.storedCount(), "rejected requests are not memorized")
}

func TestProcess_UnparseableOutput(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	mem := &memStub{}
	e := testEngine(testConfig(), staticGen("sorry, I cannot help with that"), mem, okRunner(&calls, &mu))

	resp := e.Process(context.Background(), models.Request{Content: "do something"})

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, planner.ReasonInvalidJSON, resp.Error)
	assert.Empty(t, calls)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mem.storedCount(), "failed requests are not memorized")
}

func TestProcess_LLMUnavailable(t *testing.T) {
	gen := genFunc(func(context.Context, string, *llm.Options) (string, error) {
		return "", fmt.Errorf("%w: connection refused", llm.ErrUnavailable)
	})
	e := testEngine(testConfig(), gen, &memStub{}, okRunner(nil, nil))

	resp := e.Process(context.Background(), models.Request{Content: "hello"})

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, ErrCodeLLMUnavailable, resp.Error)
}

func TestProcess_DeadlineExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 30 * time.Millisecond

	gen := genFunc(func(ctx context.Context, _ string, _ *llm.Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := testEngine(cfg, gen, &memStub{}, okRunner(nil, nil))

	resp := e.Process(context.Background(), models.Request{Content: "slow request"})

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, ErrCodeDeadlineExceeded, resp.Error)
}

func TestProcess_PartialFailure(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, a models.Action, _ bool) (*action.Result, error) {
		if a.Tool == "search_web" {
			return nil, errors.New("network down")
		}
		return &action.Result{Status: "success"}, nil
	})
	e := testEngine(testConfig(), staticGen(planText("open_app", "search_web")), &memStub{}, runner)

	resp := e.Process(context.Background(), models.Request{Content: "open and search"})

	assert.Equal(t, models.StatusPartial, resp.Status)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Executed 1/2 actions successfully.", resp.Summary)
}

func TestProcess_ConfirmationFlagFromPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedActions = append(cfg.AllowedActions, "execute_command")

	text := `{"intent": "run it", "actions": [{"type": "system_action", "tool": "execute_command", "arguments": {"command": "ls"}, "safety_level": "critical"}]}`
	e := testEngine(cfg, staticGen(text), &memStub{}, okRunner(nil, nil))

	resp := e.Process(context.Background(), models.Request{Content: "list files"})

	assert.Equal(t, models.StatusSuccess, resp.Status)
	require.NotNil(t, resp.Plan)
	assert.True(t, resp.Plan.RequiresConfirmation)
}

type recorderStub struct {
	mu       sync.Mutex
	recorded []*models.PipelineResponse
}

func (r *recorderStub) Record(resp *models.PipelineResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, resp)
}

func TestProcess_EveryOutcomeIsRecordedOnce(t *testing.T) {
	rec := &recorderStub{}

	for _, text := range []string{
		planText("open_app"),    // success
		"garbage",               // error
		planText("file_delete"), // rejected
	} {
		e := testEngine(testConfig(), staticGen(text), &memStub{}, okRunner(nil, nil))
		e.SetRecorder(rec)
		e.Process(context.Background(), models.Request{Content: "x"})
	}

	require.Len(t, rec.recorded, 3)
	assert.Equal(t, models.StatusSuccess, rec.recorded[0].Status)
	assert.Equal(t, models.StatusError, rec.recorded[1].Status)
	assert.Equal(t, models.StatusRejected, rec.recorded[2].Status)
}
