package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sethgrantham/baton/internal/events"
	"github.com/sethgrantham/baton/internal/skills"
	"github.com/sethgrantham/baton/internal/state"
	"github.com/sethgrantham/baton/internal/taskctx"
	"github.com/sethgrantham/baton/pkg/models"
)

// Collaborator stubs.

type stubDecomposer struct {
	composite *models.CompositeTask
	err       error
}

func (d *stubDecomposer) Decompose(context.Context, string, *models.Intent, map[string]any) (*models.CompositeTask, error) {
	return d.composite, d.err
}

type stubPlanner struct {
	err error
}

func (p *stubPlanner) MakeTask(_ context.Context, intent *models.Intent, _ map[string]any, _ *taskctx.TaskContext) (*models.Plan, error) {
	if p.err != nil {
		return nil, p.err
	}
	subtaskID, _ := intent.Params["subtask_id"].(string)
	plan := &models.Plan{
		ID:       "plan-" + subtaskID,
		Goal:     intent.Request,
		IntentID: intent.ID,
		Status:   models.PlanPending,
		Metadata: map[string]any{"subtask_id": subtaskID},
	}
	plan.AddStep(&models.Step{
		ID:        "s1",
		SkillName: "work",
		Params:    map[string]any{},
		Status:    models.StepPending,
	})
	return plan, nil
}

type stubValidator struct {
	// results is consumed per call; when exhausted, validation passes.
	results []models.ValidationResult
	calls   int
}

func (v *stubValidator) ValidateAndResolveParams(*models.Plan, map[string]any) models.ValidationResult {
	v.calls++
	if len(v.results) == 0 {
		return models.ValidationResult{Success: true}
	}
	res := v.results[0]
	v.results = v.results[1:]
	return res
}

type stubReplanner struct {
	ok    bool
	err   error
	calls int
}

func (r *stubReplanner) Replan(context.Context, *models.Plan, *models.Step, map[string]any) (bool, error) {
	r.calls++
	return r.ok, r.err
}

// stubRunner dispatches per subtask id: each entry is consumed once,
// so a replanned re-execution sees the next behavior in the list.
type stubRunner struct {
	behaviors map[string][]error
	runs      map[string]int
}

func newStubRunner() *stubRunner {
	return &stubRunner{behaviors: map[string][]error{}, runs: map[string]int{}}
}

func (r *stubRunner) failOnce(subtaskID string) {
	r.behaviors[subtaskID] = append(r.behaviors[subtaskID], fmt.Errorf("step s1 failed"))
}

func (r *stubRunner) failAlways(subtaskID string) {
	r.behaviors[subtaskID] = append(r.behaviors[subtaskID],
		fmt.Errorf("step s1 failed"), fmt.Errorf("step s1 failed"), fmt.Errorf("step s1 failed"))
}

func (r *stubRunner) constraintError(subtaskID, typ string) {
	r.behaviors[subtaskID] = append(r.behaviors[subtaskID],
		&skills.ConstraintError{SubtaskType: typ, Forbidden: []string{"shell_exec"}})
}

func (r *stubRunner) Run(_ context.Context, plan *models.Plan, tc *taskctx.TaskContext, _ string) error {
	subtaskID, _ := plan.Metadata["subtask_id"].(string)
	r.runs[subtaskID]++

	var err error
	if queue := r.behaviors[subtaskID]; len(queue) > 0 {
		err = queue[0]
		r.behaviors[subtaskID] = queue[1:]
	}

	if err != nil {
		plan.Status = models.PlanFailed
		for _, step := range plan.Steps {
			step.Status = models.StepFailed
			step.Result = &models.StepResult{Success: false, Error: err.Error()}
		}
		return err
	}

	plan.Status = models.PlanSuccess
	for _, step := range plan.Steps {
		step.Status = models.StepSuccess
		step.Result = &models.StepResult{Success: true, Output: "output of " + subtaskID}
		if tc != nil {
			tc.SetStepResult(step.ID, step.Result.Output)
		}
	}
	return nil
}

type stubFallback struct {
	text    string
	err     error
	calls   int
	lastMsg string
}

func (f *stubFallback) Respond(_ context.Context, userMessage, _ string) (string, error) {
	f.calls++
	f.lastMsg = userMessage
	return f.text, f.err
}

// memStore is an in-memory MemoryStore.
type memStore struct {
	working map[string]map[string]any
	runs    []*state.TaskRun
	setErr  error
}

func newMemStore() *memStore {
	return &memStore{working: map[string]map[string]any{}}
}

func (m *memStore) GetWorkingState(key string) (map[string]any, error) {
	return m.working[key], nil
}

func (m *memStore) SetWorkingState(key string, value map[string]any) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.working[key] = value
	return nil
}

func (m *memStore) RecordTaskRun(r *state.TaskRun) error {
	m.runs = append(m.runs, r)
	return nil
}

// Harness.

type harness struct {
	executor  *Executor
	decompose *stubDecomposer
	validator *stubValidator
	replanner *stubReplanner
	runner    *stubRunner
	fallback  *stubFallback
	memory    *memStore
	bus       *events.Bus
	eventLog  []events.Event
}

func newHarness(t *testing.T, composite *models.CompositeTask) *harness {
	t.Helper()
	h := &harness{
		decompose: &stubDecomposer{composite: composite},
		validator: &stubValidator{},
		replanner: &stubReplanner{},
		runner:    newStubRunner(),
		fallback:  &stubFallback{text: "try a simpler request"},
		memory:    newMemStore(),
		bus:       events.NewBus(),
	}
	h.bus.SubscribeAll(func(e events.Event) {
		h.eventLog = append(h.eventLog, e)
	})

	exec, err := New(Deps{
		Decomposer:    h.decompose,
		Orchestration: StandardOrchestration{},
		Planner:       &stubPlanner{},
		Validator:     h.validator,
		Replanner:     h.replanner,
		Runner:        h.runner,
		Memory:        h.memory,
		Fallback:      h.fallback,
		Bus:           h.bus,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.executor = exec
	return h
}

func (h *harness) eventTypes() []events.EventType {
	var types []events.EventType
	for _, e := range h.eventLog {
		types = append(types, e.Type)
	}
	return types
}

func (h *harness) lastEventOfType(typ events.EventType) *events.Event {
	for i := len(h.eventLog) - 1; i >= 0; i-- {
		if h.eventLog[i].Type == typ {
			return &h.eventLog[i]
		}
	}
	return nil
}

func makeComposite(subtasks ...*models.SubTask) *models.CompositeTask {
	return &models.CompositeTask{
		ID:       "ct-1",
		Subtasks: subtasks,
		Metadata: map[string]any{},
	}
}

func sub(id string, deps ...string) *models.SubTask {
	return &models.SubTask{
		ID:        id,
		Goal:      "goal " + id,
		Type:      "analysis",
		DependsOn: deps,
		Status:    models.SubTaskPending,
	}
}

// Scenario A: two independent subtasks, both succeed.
func TestExecute_TwoIndependentSubtasksSucceed(t *testing.T) {
	h := newHarness(t, makeComposite(sub("a"), sub("b")))

	res := h.executor.Execute(context.Background(), "do both", nil, nil)

	if !res.Success {
		t.Fatalf("Success = false, error: %s", res.Error)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}

	bb, _ := res.Context["blackboard"].(map[string]any)
	vars, _ := bb["variables"].(map[string]any)
	for _, key := range []string{taskctx.OutputKey("a"), taskctx.OutputKey("b")} {
		if _, ok := vars[key]; !ok {
			t.Errorf("blackboard missing %s", key)
		}
	}

	done := h.lastEventOfType(events.TaskCompleted)
	if done == nil {
		t.Fatal("no TaskCompleted event")
	}
	if done.Payload["success"] != true {
		t.Errorf("completion payload = %v", done.Payload)
	}
}

// Scenario B: B depends on A, A fails, B is skipped.
func TestExecute_DependentSkippedAfterFailure(t *testing.T) {
	composite := makeComposite(sub("a"), sub("b", "a"))
	h := newHarness(t, composite)
	h.runner.failAlways("a")

	res := h.executor.Execute(context.Background(), "chain", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if !composite.HasFailed() {
		t.Error("HasFailed = false")
	}
	if composite.Subtasks[1].Status != models.SubTaskPending {
		t.Errorf("b status = %s, must remain pending (skipped)", composite.Subtasks[1].Status)
	}
	if h.runner.runs["b"] != 0 {
		t.Error("b must never run")
	}

	report := res.Error
	if !strings.Contains(report, "Failed subtasks:") || !strings.Contains(report, "- a ") {
		t.Errorf("report missing failed section:\n%s", report)
	}
	if !strings.Contains(report, "Skipped subtasks") || !strings.Contains(report, "depends_on=[a]") {
		t.Errorf("report missing skipped section:\n%s", report)
	}
}

// Scenario C: all subtasks fail, fallback invoked, success stays false.
func TestExecute_AllFailedInvokesFallback(t *testing.T) {
	composite := makeComposite(sub("a"), sub("b"))
	h := newHarness(t, composite)
	h.runner.failAlways("a")
	h.runner.failAlways("b")

	res := h.executor.Execute(context.Background(), "doomed", nil, nil)

	if res.Success {
		t.Fatal("fallback must never flip success")
	}
	if !composite.NeedsFallback {
		t.Error("fallback eligibility not flagged")
	}
	if h.fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", h.fallback.calls)
	}
	if h.fallback.lastMsg != "doomed" {
		t.Errorf("fallback got message %q", h.fallback.lastMsg)
	}
	if !strings.Contains(res.Error, "[Fallback Response]\ntry a simpler request") {
		t.Errorf("report missing fallback addendum:\n%s", res.Error)
	}
}

func TestExecute_FallbackNotEligibleOnMinorFailure(t *testing.T) {
	// 3 subtasks, 1 fails: some succeeded and under half failed.
	composite := makeComposite(sub("a"), sub("b"), sub("c"))
	h := newHarness(t, composite)
	h.runner.failAlways("b")

	res := h.executor.Execute(context.Background(), "mostly fine", nil, nil)

	if res.Success {
		t.Fatal("expected partial failure")
	}
	if composite.NeedsFallback {
		t.Error("fallback must not be flagged for a minor failure")
	}
	if h.fallback.calls != 0 {
		t.Errorf("fallback calls = %d, want 0", h.fallback.calls)
	}

	done := h.lastEventOfType(events.TaskCompleted)
	if done == nil {
		t.Fatal("no TaskCompleted event")
	}
	if done.Payload["partial_success"] != true {
		t.Errorf("partial_success = %v", done.Payload["partial_success"])
	}
	if h.lastEventOfType(events.SystemError) != nil {
		t.Error("partial failure must not emit SYSTEM_ERROR")
	}
}

func TestExecute_ReplanOnceThenSuccess(t *testing.T) {
	composite := makeComposite(sub("a"))
	h := newHarness(t, composite)
	h.runner.failOnce("a")
	h.replanner.ok = true

	res := h.executor.Execute(context.Background(), "retry me", nil, nil)

	if !res.Success {
		t.Fatalf("expected success after replan, error: %s", res.Error)
	}
	if h.replanner.calls != 1 {
		t.Errorf("replanner calls = %d, want 1", h.replanner.calls)
	}
	if h.runner.runs["a"] != 2 {
		t.Errorf("runs = %d, want 2", h.runner.runs["a"])
	}

	bb, _ := res.Context["blackboard"].(map[string]any)
	vars, _ := bb["variables"].(map[string]any)
	if vars[taskctx.OutputKey("a")] != "output of a" {
		t.Errorf("blackboard output = %v", vars[taskctx.OutputKey("a")])
	}
}

func TestExecute_ReplanFailsSubtaskStaysFailed(t *testing.T) {
	composite := makeComposite(sub("a"))
	h := newHarness(t, composite)
	h.runner.failAlways("a")
	h.replanner.ok = true

	res := h.executor.Execute(context.Background(), "no luck", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if h.replanner.calls != 1 {
		t.Errorf("replanner calls = %d, want exactly 1 per failure", h.replanner.calls)
	}
	if h.runner.runs["a"] != 2 {
		t.Errorf("runs = %d, want 2 (original + one replanned retry)", h.runner.runs["a"])
	}
	if composite.Subtasks[0].Status != models.SubTaskFailed {
		t.Errorf("status = %s", composite.Subtasks[0].Status)
	}
}

func TestExecute_ConstraintViolationNeverRetried(t *testing.T) {
	composite := makeComposite(sub("a"))
	h := newHarness(t, composite)
	h.runner.constraintError("a", "analysis")

	res := h.executor.Execute(context.Background(), "sneaky", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if h.runner.runs["a"] != 1 {
		t.Errorf("runs = %d, constraint violations must not be retried", h.runner.runs["a"])
	}
	if h.replanner.calls != 0 {
		t.Errorf("replanner calls = %d, want 0", h.replanner.calls)
	}
	if !strings.Contains(composite.Subtasks[0].Error, "capability restriction") {
		t.Errorf("error = %q", composite.Subtasks[0].Error)
	}
}

func TestExecute_ValidationFailureReplansOnce(t *testing.T) {
	composite := makeComposite(sub("a"))
	h := newHarness(t, composite)
	h.validator.results = []models.ValidationResult{
		{Success: false, MissingParams: []string{"x"}, Error: "unresolved params: x"},
		{Success: true},
	}
	h.replanner.ok = true

	res := h.executor.Execute(context.Background(), "validate", nil, nil)

	if !res.Success {
		t.Fatalf("expected success, error: %s", res.Error)
	}
	if h.validator.calls != 2 {
		t.Errorf("validator calls = %d, want 2", h.validator.calls)
	}
	if h.replanner.calls != 1 {
		t.Errorf("replanner calls = %d, want 1", h.replanner.calls)
	}
}

func TestExecute_ValidationStillFailingAfterReplan(t *testing.T) {
	composite := makeComposite(sub("a"))
	h := newHarness(t, composite)
	h.validator.results = []models.ValidationResult{
		{Success: false, Error: "unresolved params: x"},
		{Success: false, Error: "unresolved params: x"},
	}
	h.replanner.ok = true

	res := h.executor.Execute(context.Background(), "validate", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(composite.Subtasks[0].Error, "even after replan") {
		t.Errorf("error = %q", composite.Subtasks[0].Error)
	}
	if h.runner.runs["a"] != 0 {
		t.Error("plan must not execute when validation never passes")
	}
}

func TestExecute_ValidationReplanExhausted(t *testing.T) {
	composite := makeComposite(sub("a"))
	h := newHarness(t, composite)
	h.validator.results = []models.ValidationResult{
		{Success: false, Error: "unresolved params: x"},
	}
	h.replanner.ok = false

	res := h.executor.Execute(context.Background(), "validate", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(composite.Subtasks[0].Error, "replan exhausted") {
		t.Errorf("error = %q", composite.Subtasks[0].Error)
	}
}

func TestExecute_DecompositionTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.decompose.err = fmt.Errorf("llm request timed out after 60s")

	res := h.executor.Execute(context.Background(), "slow", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0", res.Iterations)
	}
	if res.Context["error_type"] != "llm_timeout" {
		t.Errorf("error_type = %v", res.Context["error_type"])
	}
	ev := h.lastEventOfType(events.SystemError)
	if ev == nil {
		t.Fatal("expected SYSTEM_ERROR event on decomposition timeout")
	}
	if ev.Payload["error_type"] != "llm_timeout" {
		t.Errorf("event error_type = %v", ev.Payload["error_type"])
	}
}

func TestExecute_DecompositionFailureEmitsSystemError(t *testing.T) {
	h := newHarness(t, nil)
	h.decompose.err = fmt.Errorf("decomposer exploded")

	res := h.executor.Execute(context.Background(), "boom", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if h.lastEventOfType(events.SystemError) == nil {
		t.Error("expected SYSTEM_ERROR event")
	}
}

func TestExecute_CycleRejected(t *testing.T) {
	a := sub("a", "b")
	b := sub("b", "a")
	h := newHarness(t, makeComposite(a, b))

	res := h.executor.Execute(context.Background(), "cyclic", nil, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "invalid task graph") {
		t.Errorf("error = %q", res.Error)
	}
	if res.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0", res.Iterations)
	}
}

func TestExecute_PanicRecovered(t *testing.T) {
	h := newHarness(t, makeComposite(sub("a")))
	h.decompose.composite = nil
	h.decompose.err = nil // Decompose returns (nil, nil); executor will panic on nil composite

	res := h.executor.Execute(context.Background(), "panic", nil, nil)

	if res == nil {
		t.Fatal("result is nil")
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "internal error") {
		t.Errorf("error = %q", res.Error)
	}
	if h.lastEventOfType(events.SystemError) == nil {
		t.Error("expected SYSTEM_ERROR event")
	}
}

func TestExecute_IterationBound(t *testing.T) {
	composite := makeComposite(sub("a"), sub("b"), sub("c"))
	h := newHarness(t, composite)

	res := h.executor.Execute(context.Background(), "bounded", nil, nil)

	if res.Iterations > 2*len(composite.Subtasks) {
		t.Errorf("Iterations = %d exceeds 2N bound", res.Iterations)
	}
}

func TestExecute_SessionRestoredAndPersisted(t *testing.T) {
	h := newHarness(t, makeComposite(sub("a")))

	prior := taskctx.NewSession("sess-42")
	prior.SetVariable("carried", "over")
	h.memory.working[taskctx.WorkingStateKey("sess-42")] = prior.ToMap()

	intent := &models.Intent{ID: "i-1", Metadata: map[string]any{"session_id": "sess-42"}}
	res := h.executor.Execute(context.Background(), "continue", intent, nil)

	if !res.Success {
		t.Fatalf("error: %s", res.Error)
	}
	if res.Context["session_id"] != "sess-42" {
		t.Errorf("session_id = %v", res.Context["session_id"])
	}

	persisted := h.memory.working[taskctx.WorkingStateKey("sess-42")]
	if persisted == nil {
		t.Fatal("session not persisted")
	}
	vars, _ := persisted["variables"].(map[string]any)
	if vars["carried"] != "over" {
		t.Error("restored variable lost")
	}
	if _, ok := vars[taskctx.OutputKey("a")]; !ok {
		t.Error("new output not persisted")
	}

	if len(h.memory.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(h.memory.runs))
	}
	if !h.memory.runs[0].Success || h.memory.runs[0].SessionID != "sess-42" {
		t.Errorf("run record = %+v", h.memory.runs[0])
	}
	if run := h.memory.runs[0]; run.Subtasks != 1 || run.Succeeded != 1 || run.Failed != 0 {
		t.Errorf("run counts = %d/%d/%d, want 1/1/0", run.Subtasks, run.Succeeded, run.Failed)
	}
}

func TestExecute_SessionPersistFailureNonFatal(t *testing.T) {
	h := newHarness(t, makeComposite(sub("a")))
	h.memory.setErr = fmt.Errorf("disk full")

	res := h.executor.Execute(context.Background(), "still fine", nil, nil)

	if !res.Success {
		t.Errorf("persist failure must not fail the run: %s", res.Error)
	}
}

func TestExecute_StopRequested(t *testing.T) {
	composite := makeComposite(sub("a"), sub("b"))
	h := newHarness(t, composite)

	stopped := false
	h.executor.deps.StopRequested = func() bool { return stopped }
	h.runner.behaviors["a"] = nil

	// Stop after the first subtask completes.
	h.bus.Subscribe(events.SubtaskComplete, func(events.Event) { stopped = true })

	res := h.executor.Execute(context.Background(), "halt", nil, nil)

	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
	if composite.Subtasks[1].Status != models.SubTaskPending {
		t.Errorf("b status = %s, want pending", composite.Subtasks[1].Status)
	}
}

func TestExecute_UpstreamValueInjected(t *testing.T) {
	composite := makeComposite(sub("a"), sub("b", "a"))
	h := newHarness(t, composite)

	var upstream any
	origRunner := h.runner
	h.executor.deps.Runner = runnerFunc(func(ctx context.Context, plan *models.Plan, tc *taskctx.TaskContext, typ string) error {
		if id, _ := plan.Metadata["subtask_id"].(string); id == "b" {
			upstream = tc.Get(taskctx.UpstreamKey("a"))
		}
		return origRunner.Run(ctx, plan, tc, typ)
	})

	res := h.executor.Execute(context.Background(), "wire", nil, nil)
	if !res.Success {
		t.Fatalf("error: %s", res.Error)
	}
	if upstream != "output of a" {
		t.Errorf("upstream_a = %v, want output of a", upstream)
	}
}

type runnerFunc func(context.Context, *models.Plan, *taskctx.TaskContext, string) error

func (f runnerFunc) Run(ctx context.Context, plan *models.Plan, tc *taskctx.TaskContext, typ string) error {
	return f(ctx, plan, tc, typ)
}

func TestExcerptNeverSplitsRune(t *testing.T) {
	long := strings.Repeat("y", 199) + strings.Repeat("ü", 10)
	got, ok := excerpt(long).(string)
	if !ok {
		t.Fatalf("excerpt returned %T", excerpt(long))
	}
	if !utf8.ValidString(got) {
		t.Error("excerpt split a multibyte rune")
	}
	if len(got) != 199 {
		t.Errorf("excerpt length = %d, want 199", len(got))
	}
}

func TestNew_MissingCollaborator(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
}
