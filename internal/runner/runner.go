// Package runner executes one low-level plan's steps in order.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethgrantham/baton/internal/events"
	"github.com/sethgrantham/baton/internal/skills"
	"github.com/sethgrantham/baton/internal/taskctx"
	"github.com/sethgrantham/baton/pkg/models"
)

// Runner executes plan steps sequentially against the skill registry,
// honoring the capability guard and emitting step/skill events.
type Runner struct {
	registry *skills.Registry
	guard    *skills.Guard
	bus      *events.Bus
}

// New creates a runner. guard and bus may be nil.
func New(registry *skills.Registry, guard *skills.Guard, bus *events.Bus) *Runner {
	return &Runner{registry: registry, guard: guard, bus: bus}
}

// Run executes every step of the plan in order. subtaskType is the
// declared type of the owning subtask, checked against the guard before
// any step runs. The plan's status is always set terminal: PlanSuccess
// when all steps succeed, PlanFailed otherwise. A guard violation fails
// the plan before any step executes and is returned as a
// *skills.ConstraintError.
func (r *Runner) Run(ctx context.Context, plan *models.Plan, tc *taskctx.TaskContext, subtaskType string) error {
	if r.guard != nil {
		names := make([]string, 0, len(plan.Steps))
		for _, step := range plan.Steps {
			names = append(names, step.SkillName)
		}
		if err := r.guard.Check(subtaskType, names); err != nil {
			plan.Status = models.PlanFailed
			r.skipRemaining(plan, 0)
			return err
		}
	}

	plan.Status = models.PlanRunning

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			plan.Status = models.PlanFailed
			r.skipRemaining(plan, i)
			return fmt.Errorf("plan %s cancelled: %w", plan.ID, err)
		}

		if err := r.runStep(ctx, plan, step, tc); err != nil {
			plan.Status = models.PlanFailed
			r.skipRemaining(plan, i+1)
			return err
		}
	}

	plan.Status = models.PlanSuccess
	return nil
}

func (r *Runner) runStep(ctx context.Context, plan *models.Plan, step *models.Step, tc *taskctx.TaskContext) error {
	r.publish(events.StepStart, map[string]any{
		"step_id": step.ID,
		"skill":   step.SkillName,
	}, plan.ID, step.ID)

	step.Status = models.StepRunning

	skill, err := r.registry.Resolve(step.SkillName)
	if err != nil {
		r.failStep(plan, step, err)
		return fmt.Errorf("step %s: %w", step.ID, err)
	}

	r.publish(events.SkillStart, map[string]any{"skill": skill.Name()}, plan.ID, step.ID)
	start := time.Now()
	output, err := skill.Execute(ctx, resolveParams(step.Params, tc), tc)
	elapsed := time.Since(start)
	r.publish(events.SkillEnd, map[string]any{
		"skill":       skill.Name(),
		"duration_ms": elapsed.Milliseconds(),
		"success":     err == nil,
	}, plan.ID, step.ID)

	if err != nil {
		step.Result = &models.StepResult{Success: false, Error: err.Error(), Duration: elapsed}
		r.failStep(plan, step, err)
		return fmt.Errorf("step %s (%s): %w", step.ID, step.SkillName, err)
	}

	step.Status = models.StepSuccess
	step.Result = &models.StepResult{Success: true, Output: output, Duration: elapsed}
	if tc != nil {
		tc.SetStepResult(step.ID, output)
	}

	r.publish(events.StepEnd, map[string]any{
		"step_id": step.ID,
		"skill":   step.SkillName,
	}, plan.ID, step.ID)
	return nil
}

func (r *Runner) failStep(plan *models.Plan, step *models.Step, err error) {
	step.Status = models.StepFailed
	if step.Result == nil {
		step.Result = &models.StepResult{Success: false, Error: err.Error()}
	}
	r.publish(events.StepFailed, map[string]any{
		"step_id": step.ID,
		"skill":   step.SkillName,
		"error":   err.Error(),
	}, plan.ID, step.ID)
}

// skipRemaining marks all not-yet-terminal steps from index i as skipped.
func (r *Runner) skipRemaining(plan *models.Plan, from int) {
	for _, step := range plan.Steps[from:] {
		if step.Status == models.StepPending {
			step.Status = models.StepSkipped
			r.publish(events.StepSkipped, map[string]any{"step_id": step.ID}, plan.ID, step.ID)
		}
	}
}

// resolveParams substitutes "${name}" string values from task context
// variables. The step's own params map is never mutated.
func resolveParams(params map[string]any, tc *taskctx.TaskContext) map[string]any {
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		resolved[k] = v
		s, ok := v.(string)
		if !ok || tc == nil {
			continue
		}
		if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
			if val := tc.Get(s[2 : len(s)-1]); val != nil {
				resolved[k] = val
			}
		}
	}
	return resolved
}

func (r *Runner) publish(typ events.EventType, payload map[string]any, runID, stepID string) {
	if r.bus == nil {
		return
	}
	ev := events.New(typ, "runner", payload)
	ev.RunID = runID
	ev.StepID = stepID
	r.bus.Publish(ev)
}
