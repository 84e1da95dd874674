package executor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sethgrantham/baton/internal/classify"
	"github.com/sethgrantham/baton/internal/events"
	"github.com/sethgrantham/baton/internal/skills"
	"github.com/sethgrantham/baton/internal/taskctx"
	"github.com/sethgrantham/baton/pkg/models"
)

// maxUpstreamExcerpt bounds dependency output excerpts placed in the
// validation context.
const maxUpstreamExcerpt = 200

// executeOneSubtask drives a single subtask from intent creation to a
// terminal status. All failure modes end with the subtask FAILED and a
// SUBTASK_FAILED event; nothing propagates to the scheduling loop.
func (e *Executor) executeOneSubtask(ctx context.Context, subtask *models.SubTask, composite *models.CompositeTask, priorIntent *models.Intent, session *taskctx.SessionContext, env map[string]any) {
	e.publish(events.SubtaskStart, map[string]any{
		"subtask_id": subtask.ID,
		"goal":       subtask.Goal,
	}, composite.ID)
	subtask.Status = models.SubTaskRunning

	intent, err := e.deps.Orchestration.CreateSubtaskIntent(subtask, composite, priorIntent, composite.CompletedSubtasks())
	if err != nil {
		e.failSubtask(subtask, composite, fmt.Sprintf("intent creation failed: %v", err))
		return
	}

	plan, err := e.deps.Planner.MakeTask(ctx, intent, env, nil)
	if err != nil {
		e.failSubtask(subtask, composite, fmt.Sprintf("planning failed: %v", err))
		return
	}
	if plan.Metadata == nil {
		plan.Metadata = map[string]any{}
	}
	plan.Metadata["session_id"] = session.SessionID
	subtask.TaskID = plan.ID

	e.publish(events.PlanGenerated, map[string]any{
		"subtask_id": subtask.ID,
		"plan_id":    plan.ID,
		"step_count": len(plan.Steps),
	}, composite.ID)

	// Validate before executing; exactly one replan on failure.
	vctx := e.buildValidationContext(subtask, composite, session)
	res := e.deps.Validator.ValidateAndResolveParams(plan, vctx)
	if !res.Success {
		e.logger.Log("subtask %s validation failed: %s", subtask.ID, res.Error)
		e.publish(events.PlanReplanning, map[string]any{
			"subtask_id": subtask.ID,
			"reason":     "validation",
		}, composite.ID)

		ok, rerr := e.deps.Replanner.Replan(ctx, plan, firstFailedStep(plan), env)
		if rerr != nil || !ok {
			e.failSubtask(subtask, composite, fmt.Sprintf("validation failed and replan exhausted: %s", res.Error))
			return
		}
		if res = e.deps.Validator.ValidateAndResolveParams(plan, vctx); !res.Success {
			e.failSubtask(subtask, composite, fmt.Sprintf("validation failed even after replan: %s", res.Error))
			return
		}
	}

	// Execute.
	tc, err := e.runPlan(ctx, subtask, plan, session, env)
	if err == nil {
		e.completeSubtask(subtask, composite, plan, tc, session)
		return
	}
	if skills.IsConstraintError(err) {
		// Terminal: retrying by relabeling the subtask would let a
		// planner escape capability restrictions.
		e.failSubtask(subtask, composite, constraintMessage(subtask, err))
		return
	}

	diagnostic := planDiagnostic(plan)
	e.logger.Log("subtask %s execution failed: %s", subtask.ID, diagnostic)
	e.publish(events.PlanReplanning, map[string]any{
		"subtask_id": subtask.ID,
		"reason":     "execution",
	}, composite.ID)

	// One replan-and-re-execute cycle.
	ok, rerr := e.deps.Replanner.Replan(ctx, plan, firstFailedStep(plan), env)
	if rerr == nil && ok {
		resetPlan(plan)
		tc, err = e.runPlan(ctx, subtask, plan, session, env)
		if err == nil {
			e.completeSubtask(subtask, composite, plan, tc, session)
			return
		}
		if skills.IsConstraintError(err) {
			e.failSubtask(subtask, composite, constraintMessage(subtask, err))
			return
		}
		diagnostic = planDiagnostic(plan)
	}

	e.failSubtask(subtask, composite, diagnostic)
}

// runPlan builds the task context, injects upstream dependency outputs,
// and delegates to the runner.
func (e *Executor) runPlan(ctx context.Context, subtask *models.SubTask, plan *models.Plan, session *taskctx.SessionContext, env map[string]any) (*taskctx.TaskContext, error) {
	tc := taskctx.FromPlan(plan, env)
	if e.deps.Memory != nil {
		tc.AttachMemory(e.deps.Memory)
	}
	if session != nil {
		tc.AttachSession(session)
		for _, dep := range subtask.DependsOn {
			if v := session.Variable(taskctx.OutputKey(dep)); v != nil {
				tc.Set(taskctx.UpstreamKey(dep), v)
			}
		}
	}

	plan.Status = models.PlanRunning
	tc.MarkRunning()

	err := e.deps.Runner.Run(ctx, plan, tc, subtask.Type)
	subtask.TaskResult = plan

	if err != nil {
		tc.MarkFinished(taskctx.StateFailed)
		return tc, err
	}
	tc.MarkFinished(taskctx.StateCompleted)
	return tc, nil
}

// completeSubtask collects outputs, materializes expected files, and
// syncs outputs, variables, and artifacts into the blackboard.
func (e *Executor) completeSubtask(subtask *models.SubTask, composite *models.CompositeTask, plan *models.Plan, tc *taskctx.TaskContext, session *taskctx.SessionContext) {
	outputs, err := e.deps.Orchestration.CollectSubtaskOutputs(subtask, plan, composite)
	if err != nil {
		e.logger.Log("collect outputs failed for subtask %s: %v", subtask.ID, err)
		outputs = map[string]any{}
	}
	outputs = e.ensureExpectedFiles(subtask, outputs)

	subtask.Status = models.SubTaskSuccess
	subtask.ActualOutputs = outputs
	subtask.Error = ""

	if session != nil {
		for k, v := range outputs {
			session.SetVariable(taskctx.FieldKey(subtask.ID, k), v)
		}
		if first := firstOutputValue(plan, outputs); first != nil {
			session.SetVariable(taskctx.OutputKey(subtask.ID), first)
		}
		for k, v := range tc.Variables.Vars {
			if strings.HasPrefix(k, "_") {
				continue
			}
			session.SetVariable(taskctx.VarKey(subtask.ID, k), v)
		}
		for _, art := range tc.Artifacts.Items {
			session.AddArtifact(map[string]any{
				"id":         art.ID,
				"type":       art.Type,
				"uri":        art.URI,
				"metadata":   art.Meta,
				"subtask_id": subtask.ID,
			})
		}
	}

	if e.deps.Cache != nil {
		if err := e.deps.Cache.Store(plan); err != nil {
			e.logger.Log("plan cache rejected plan %s: %v", plan.ID, err)
		}
	}

	e.publish(events.SubtaskComplete, map[string]any{
		"subtask_id":   subtask.ID,
		"output_count": len(outputs),
	}, composite.ID)
}

func (e *Executor) failSubtask(subtask *models.SubTask, composite *models.CompositeTask, msg string) {
	subtask.Status = models.SubTaskFailed
	subtask.Error = msg

	info := classify.Classify(msg, "")
	e.publish(events.SubtaskFailed, map[string]any{
		"subtask_id": subtask.ID,
		"error":      msg,
		"error_type": string(info.ErrorType),
		"severity":   string(info.Severity),
	}, composite.ID)
}

// buildValidationContext assembles, from most to least specific: the
// subtask's own goal, the top-level request, artifact paths from
// completed work, the blackboard snapshot, and short excerpts of direct
// dependency outputs.
func (e *Executor) buildValidationContext(subtask *models.SubTask, composite *models.CompositeTask, session *taskctx.SessionContext) map[string]any {
	vctx := map[string]any{
		"goal": subtask.Goal,
	}
	if req, ok := composite.Metadata["request"]; ok {
		vctx["user_goal"] = req
	}

	if session != nil {
		var paths []string
		for _, art := range session.Artifacts {
			if uri, ok := art["uri"].(string); ok && uri != "" {
				paths = append(paths, uri)
			}
		}
		vctx["artifact_paths"] = paths

		for k, v := range session.Variables {
			vctx[k] = v
		}
		for _, dep := range subtask.DependsOn {
			if v := session.Variable(taskctx.OutputKey(dep)); v != nil {
				vctx[taskctx.UpstreamKey(dep)] = excerpt(v)
			}
		}
	}
	return vctx
}

// excerpt bounds a dependency output to a short text sample.
func excerpt(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return truncate(s, maxUpstreamExcerpt)
}

// truncate bounds s to at most max bytes without splitting a
// multibyte rune at the cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// firstOutputValue picks the value mirrored to subtask_{id}_output:
// the first successful step's output in plan order, else the content
// field, else any single output.
func firstOutputValue(plan *models.Plan, outputs map[string]any) any {
	for _, step := range plan.Steps {
		if v, ok := outputs[step.ID]; ok {
			return v
		}
	}
	if v, ok := outputs["content"]; ok {
		return v
	}
	for _, v := range outputs {
		return v
	}
	return nil
}

func firstFailedStep(plan *models.Plan) *models.Step {
	failed := plan.FailedSteps()
	if len(failed) == 0 {
		return nil
	}
	return failed[0]
}

// planDiagnostic summarizes a failed plan: status plus up to three
// failed-step summaries.
func planDiagnostic(plan *models.Plan) string {
	parts := []string{fmt.Sprintf("plan %s finished with status %s", plan.ID, plan.Status)}
	for i, step := range plan.FailedSteps() {
		if i >= 3 {
			break
		}
		errMsg := "unknown error"
		if step.Result != nil && step.Result.Error != "" {
			errMsg = step.Result.Error
		}
		parts = append(parts, fmt.Sprintf("step %s (%s): %s", step.ID, step.SkillName, errMsg))
	}
	return strings.Join(parts, "; ")
}

func constraintMessage(subtask *models.SubTask, err error) string {
	return fmt.Sprintf("capability restriction for type %q cannot be bypassed by replanning: %v", subtask.Type, err)
}

// resetPlan returns a replanned plan's steps to a runnable state.
func resetPlan(plan *models.Plan) {
	plan.Status = models.PlanPending
	for _, step := range plan.Steps {
		if step.Status != models.StepPending {
			step.Status = models.StepPending
			step.Result = nil
		}
	}
}
