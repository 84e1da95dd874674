package runner

import (
	"context"
	"fmt"
	"testing"

	"github.com/sethgrantham/baton/internal/events"
	"github.com/sethgrantham/baton/internal/skills"
	"github.com/sethgrantham/baton/internal/taskctx"
	"github.com/sethgrantham/baton/pkg/models"
)

type stubSkill struct {
	name string
	fn   func(params map[string]any) (any, error)
}

func (s *stubSkill) Name() string      { return s.name }
func (s *stubSkill) Aliases() []string { return nil }
func (s *stubSkill) Execute(_ context.Context, params map[string]any, _ *taskctx.TaskContext) (any, error) {
	return s.fn(params)
}

func testRegistry(t *testing.T, sks ...skills.Skill) *skills.Registry {
	t.Helper()
	r := skills.NewRegistry()
	for _, s := range sks {
		if err := r.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.Name(), err)
		}
	}
	return r
}

func planWithSteps(skillNames ...string) *models.Plan {
	p := &models.Plan{ID: "plan-1", Goal: "test plan", Status: models.PlanPending}
	for i, name := range skillNames {
		p.AddStep(&models.Step{
			ID:        fmt.Sprintf("s%d", i+1),
			Order:     i,
			SkillName: name,
			Params:    map[string]any{},
			Status:    models.StepPending,
		})
	}
	return p
}

func TestRun_AllStepsSucceed(t *testing.T) {
	ok := &stubSkill{name: "ok", fn: func(map[string]any) (any, error) { return "done", nil }}
	r := New(testRegistry(t, ok), nil, nil)

	plan := planWithSteps("ok", "ok")
	if err := r.Run(context.Background(), plan, nil, "analysis"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if plan.Status != models.PlanSuccess {
		t.Errorf("plan status = %s, want success", plan.Status)
	}
	for _, step := range plan.Steps {
		if step.Status != models.StepSuccess {
			t.Errorf("step %s status = %s", step.ID, step.Status)
		}
		if step.Result == nil || !step.Result.Success || step.Result.Output != "done" {
			t.Errorf("step %s result = %+v", step.ID, step.Result)
		}
	}
}

func TestRun_FailureSkipsRemaining(t *testing.T) {
	ok := &stubSkill{name: "ok", fn: func(map[string]any) (any, error) { return 1, nil }}
	boom := &stubSkill{name: "boom", fn: func(map[string]any) (any, error) {
		return nil, fmt.Errorf("exploded")
	}}
	r := New(testRegistry(t, ok, boom), nil, nil)

	plan := planWithSteps("ok", "boom", "ok")
	err := r.Run(context.Background(), plan, nil, "")
	if err == nil {
		t.Fatal("expected error")
	}

	if plan.Status != models.PlanFailed {
		t.Errorf("plan status = %s, want failed", plan.Status)
	}
	if plan.Steps[0].Status != models.StepSuccess {
		t.Errorf("step 1 = %s", plan.Steps[0].Status)
	}
	if plan.Steps[1].Status != models.StepFailed {
		t.Errorf("step 2 = %s", plan.Steps[1].Status)
	}
	if plan.Steps[2].Status != models.StepSkipped {
		t.Errorf("step 3 = %s, want skipped", plan.Steps[2].Status)
	}
}

func TestRun_GuardViolationBeforeAnyStep(t *testing.T) {
	ran := false
	forbidden := &stubSkill{name: "shell_exec", fn: func(map[string]any) (any, error) {
		ran = true
		return nil, nil
	}}
	guard := skills.NewGuard(map[string][]string{"analysis": {"echo"}})
	r := New(testRegistry(t, forbidden), guard, nil)

	plan := planWithSteps("shell_exec")
	err := r.Run(context.Background(), plan, nil, "analysis")
	if !skills.IsConstraintError(err) {
		t.Fatalf("err = %v, want constraint error", err)
	}
	if ran {
		t.Error("forbidden skill must not run")
	}
	if plan.Status != models.PlanFailed {
		t.Errorf("plan status = %s, want failed", plan.Status)
	}
	if plan.Steps[0].Status != models.StepSkipped {
		t.Errorf("step = %s, want skipped", plan.Steps[0].Status)
	}
}

func TestRun_UnknownSkillFailsStep(t *testing.T) {
	r := New(testRegistry(t), nil, nil)

	plan := planWithSteps("ghost")
	if err := r.Run(context.Background(), plan, nil, ""); err == nil {
		t.Fatal("expected error for unknown skill")
	}
	if plan.Steps[0].Status != models.StepFailed {
		t.Errorf("step = %s, want failed", plan.Steps[0].Status)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ok := &stubSkill{name: "ok", fn: func(map[string]any) (any, error) { return nil, nil }}
	r := New(testRegistry(t, ok), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := planWithSteps("ok")
	if err := r.Run(ctx, plan, nil, ""); err == nil {
		t.Fatal("expected cancellation error")
	}
	if plan.Status != models.PlanFailed {
		t.Errorf("plan status = %s, want failed", plan.Status)
	}
}

func TestRun_EmitsStepEvents(t *testing.T) {
	ok := &stubSkill{name: "ok", fn: func(map[string]any) (any, error) { return nil, nil }}
	bus := events.NewBus()

	var types []events.EventType
	bus.SubscribeAll(func(e events.Event) {
		types = append(types, e.Type)
	})

	r := New(testRegistry(t, ok), nil, bus)
	plan := planWithSteps("ok")
	if err := r.Run(context.Background(), plan, nil, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []events.EventType{events.StepStart, events.SkillStart, events.SkillEnd, events.StepEnd}
	if len(types) != len(want) {
		t.Fatalf("got %d events %v, want %v", len(types), types, want)
	}
	for i, typ := range want {
		if types[i] != typ {
			t.Errorf("event %d = %s, want %s", i, types[i], typ)
		}
	}
}

func TestRun_ResolvesPlaceholderParams(t *testing.T) {
	var got map[string]any
	capture := &stubSkill{name: "capture", fn: func(params map[string]any) (any, error) {
		got = params
		return nil, nil
	}}
	r := New(testRegistry(t, capture), nil, nil)

	tc := taskctx.New("goal", "t-1", "s-1", nil)
	tc.Set("upstream_fetch", "fetched data")

	plan := planWithSteps("capture")
	plan.Steps[0].Params = map[string]any{
		"input":   "${upstream_fetch}",
		"literal": "unchanged",
		"missing": "${nope}",
	}
	if err := r.Run(context.Background(), plan, tc, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got["input"] != "fetched data" {
		t.Errorf("input = %v, want resolved upstream value", got["input"])
	}
	if got["literal"] != "unchanged" {
		t.Errorf("literal = %v", got["literal"])
	}
	if got["missing"] != "${nope}" {
		t.Errorf("missing = %v, unresolvable placeholder should pass through", got["missing"])
	}
	if plan.Steps[0].Params["input"] != "${upstream_fetch}" {
		t.Error("step params must not be mutated by resolution")
	}
}

func TestRun_SetsStepResultOnContext(t *testing.T) {
	ok := &stubSkill{name: "ok", fn: func(map[string]any) (any, error) { return "value", nil }}
	r := New(testRegistry(t, ok), nil, nil)

	tc := taskctx.New("goal", "t-1", "s-1", nil)
	plan := planWithSteps("ok")
	if err := r.Run(context.Background(), plan, tc, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := tc.Get("last_output"); got != "value" {
		t.Errorf("last_output = %v, want value", got)
	}
}
