package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sethgrantham/baton/internal/classify"
	"github.com/sethgrantham/baton/internal/events"
	"github.com/sethgrantham/baton/internal/graph"
	"github.com/sethgrantham/baton/internal/state"
	"github.com/sethgrantham/baton/internal/taskctx"
	"github.com/sethgrantham/baton/pkg/models"
)

// Deps wires the executor's collaborators. Decomposer, Orchestration,
// Planner, Validator, Replanner, and Runner are required; the rest are
// optional and degrade to no-ops.
type Deps struct {
	Decomposer    Decomposer
	Orchestration Orchestration
	Planner       Planner
	Validator     Validator
	Replanner     Replanner
	Runner        DAGRunner
	Memory        MemoryStore
	Policy        FailurePolicy
	Fallback      Fallback
	Cache         PlanCache
	Bus           *events.Bus
	Logger        *DebugLogger
	// StopRequested is checked between scheduling iterations; when it
	// returns true the loop stops before selecting the next subtask.
	StopRequested func() bool
}

// Executor drives one composite task: decomposition, dependency-aware
// sequential scheduling, validation with one replan, one
// replan-and-re-execute on runtime failure, fallback escalation, and
// blackboard synchronization. Subtask execution is strictly sequential;
// one Executor invocation owns its session context exclusively.
type Executor struct {
	deps   Deps
	logger *DebugLogger
}

// New creates an executor, validating required collaborators.
func New(deps Deps) (*Executor, error) {
	switch {
	case deps.Decomposer == nil:
		return nil, fmt.Errorf("executor: Decomposer is required")
	case deps.Orchestration == nil:
		return nil, fmt.Errorf("executor: Orchestration is required")
	case deps.Planner == nil:
		return nil, fmt.Errorf("executor: Planner is required")
	case deps.Validator == nil:
		return nil, fmt.Errorf("executor: Validator is required")
	case deps.Replanner == nil:
		return nil, fmt.Errorf("executor: Replanner is required")
	case deps.Runner == nil:
		return nil, fmt.Errorf("executor: Runner is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = NopLogger()
	}
	return &Executor{deps: deps, logger: logger}, nil
}

// Execute runs one composite task end to end. It never panics its
// caller: internal failures come back as an unsuccessful RunResult.
func (e *Executor) Execute(ctx context.Context, request string, priorIntent *models.Intent, env map[string]any) (result *models.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Log("fatal: recovered from panic: %v", r)
			result = e.systemError(fmt.Sprintf("internal error: %v", r))
		}
	}()

	// 1. Session setup. Restore failure is non-fatal.
	session := e.restoreOrCreateSession(priorIntent)

	// 2. Decomposition.
	composite, err := e.deps.Decomposer.Decompose(ctx, request, priorIntent, env)
	if err != nil {
		info := classify.Classify(err.Error(), "")
		if info.ErrorType == classify.LLMTimeout || info.ErrorType == classify.TimeoutError {
			e.logger.Log("decomposition timed out: %v", err)
			e.publish(events.SystemError, map[string]any{
				"error":      info.UserMessage,
				"error_type": string(info.ErrorType),
				"severity":   string(info.Severity),
			}, "")
			return &models.RunResult{
				Success: false,
				Error:   info.UserMessage,
				Context: map[string]any{
					"error_type":  string(info.ErrorType),
					"suggestions": info.Suggestions,
				},
			}
		}
		return e.systemError(fmt.Sprintf("decomposition failed: %v", err))
	}

	if composite.Metadata == nil {
		composite.Metadata = map[string]any{}
	}
	if _, ok := composite.Metadata["session_id"]; !ok {
		composite.Metadata["session_id"] = session.SessionID
	}
	composite.Metadata["request"] = request

	if _, err := graph.Validate(composite); err != nil {
		return e.systemError(fmt.Sprintf("invalid task graph: %v", err))
	}

	e.publish(events.TaskDecomposed, map[string]any{
		"composite_id":  composite.ID,
		"subtask_count": len(composite.Subtasks),
	}, composite.ID)
	e.publish(events.PlanGenerated, map[string]any{
		"composite_id": composite.ID,
		"subtasks":     subtaskSummaries(composite),
	}, composite.ID)

	// 3. Scheduling loop. The 2N bound caps replanning oscillation.
	maxIterations := 2 * len(composite.Subtasks)
	iterations := 0
	failedCount := 0

	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			e.logger.Log("run cancelled after %d iterations: %v", iterations, err)
			break
		}
		if e.deps.StopRequested != nil && e.deps.StopRequested() {
			e.logger.Log("stop requested after %d iterations", iterations)
			break
		}

		ready := composite.ReadySubtasks()
		if len(ready) == 0 {
			if composite.HasFailed() {
				e.flagFallbackEligibility(composite)
			}
			break
		}

		subtask := ready[0]
		iterations++
		e.executeOneSubtask(ctx, subtask, composite, priorIntent, session, env)

		e.publish(events.SubtaskProgress, map[string]any{
			"composite_id": composite.ID,
			"subtask_id":   subtask.ID,
			"status":       string(subtask.Status),
			"iteration":    iterations,
		}, composite.ID)

		if subtask.Status == models.SubTaskFailed {
			failedCount++
			if e.deps.Policy != nil && e.deps.Policy.ShouldStop(subtask.ID, failedCount) {
				e.logger.Log("failure policy stopped the run after subtask %s (%d failed)", subtask.ID, failedCount)
				e.flagFallbackEligibility(composite)
				break
			}
		}
	}

	// 5. Outcome.
	success := composite.IsComplete() && !composite.HasFailed()

	// 6. Failure reporting and fallback.
	var report string
	if !success {
		report = buildFailureReport(composite)
		if composite.NeedsFallback && e.deps.Fallback != nil {
			if text := e.invokeFallback(ctx, request, report); text != "" {
				report += "\n\n[Fallback Response]\n" + text
			}
		}
	}

	// 7. Finalization.
	counts := composite.StatusCounts()
	e.recordRun(composite, session, request, success, counts, iterations, report)
	e.persistSession(session)

	payload := map[string]any{
		"composite_id":  composite.ID,
		"success":       success,
		"subtask_count": len(composite.Subtasks),
		"succeeded":     counts[models.SubTaskSuccess],
		"failed":        counts[models.SubTaskFailed],
		"iterations":    iterations,
	}
	if !success {
		payload["partial_success"] = counts[models.SubTaskSuccess] > 0
		payload["failed_count"] = counts[models.SubTaskFailed]
	}
	// Always TASK_COMPLETED; a partial failure is not a system error.
	e.publish(events.TaskCompleted, payload, composite.ID)

	resultCtx := map[string]any{
		"session_id": session.SessionID,
		"blackboard": session.ToMap(),
	}
	var errText string
	if !success {
		errText = report
		resultCtx["failure_report"] = report
	}
	return &models.RunResult{
		Success:    success,
		Context:    resultCtx,
		Plan:       composite,
		Error:      errText,
		Iterations: iterations,
	}
}

// restoreOrCreateSession loads the session blackboard named by the
// prior intent, falling back to a fresh session on any failure.
func (e *Executor) restoreOrCreateSession(priorIntent *models.Intent) *taskctx.SessionContext {
	sessionID := ""
	if priorIntent != nil {
		if sid, ok := priorIntent.Metadata["session_id"].(string); ok {
			sessionID = sid
		}
	}
	if sessionID == "" || e.deps.Memory == nil {
		return taskctx.NewSession(sessionID)
	}

	stored, err := e.deps.Memory.GetWorkingState(taskctx.WorkingStateKey(sessionID))
	if err != nil {
		e.logger.Log("session restore failed for %s: %v", sessionID, err)
		return taskctx.NewSession(sessionID)
	}
	if stored == nil {
		return taskctx.NewSession(sessionID)
	}
	session, err := taskctx.SessionFromMap(stored)
	if err != nil {
		e.logger.Log("session decode failed for %s: %v", sessionID, err)
		return taskctx.NewSession(sessionID)
	}
	return session
}

// flagFallbackEligibility marks the composite for fallback when zero
// subtasks succeeded or at least half failed. Advisory only.
func (e *Executor) flagFallbackEligibility(composite *models.CompositeTask) {
	counts := composite.StatusCounts()
	succeeded := counts[models.SubTaskSuccess]
	failed := counts[models.SubTaskFailed]
	if succeeded == 0 || failed*2 >= len(composite.Subtasks) {
		composite.NeedsFallback = true
	}
}

// invokeFallback asks the fallback responder for advisory text. The
// composite's success flag is never changed by the response.
func (e *Executor) invokeFallback(ctx context.Context, request, report string) string {
	reason := truncate(report, maxFallbackReason)
	text, err := e.deps.Fallback.Respond(ctx, request, reason)
	if err != nil {
		e.logger.Log("fallback invocation failed: %v", err)
		return ""
	}
	return text
}

const maxFallbackReason = 500

func (e *Executor) recordRun(composite *models.CompositeTask, session *taskctx.SessionContext, request string, success bool, counts map[models.SubTaskStatus]int, iterations int, report string) {
	if e.deps.Memory == nil {
		return
	}
	now := time.Now()
	run := &state.TaskRun{
		ID:         uuid.NewString(),
		SessionID:  session.SessionID,
		Request:    request,
		Success:    success,
		Partial:    !success && counts[models.SubTaskSuccess] > 0,
		Subtasks:   len(composite.Subtasks),
		Succeeded:  counts[models.SubTaskSuccess],
		Failed:     counts[models.SubTaskFailed],
		Iterations: iterations,
		Error:      report,
		StartedAt:  now,
		FinishedAt: &now,
	}
	if err := e.deps.Memory.RecordTaskRun(run); err != nil {
		e.logger.Log("record task run failed: %v", err)
	}
}

func (e *Executor) persistSession(session *taskctx.SessionContext) {
	if e.deps.Memory == nil || session == nil {
		return
	}
	key := taskctx.WorkingStateKey(session.SessionID)
	if err := e.deps.Memory.SetWorkingState(key, session.ToMap()); err != nil {
		e.logger.Log("session persist failed for %s: %v", session.SessionID, err)
	}
}

// systemError emits SYSTEM_ERROR and builds the unsuccessful result
// used by the outer failure path.
func (e *Executor) systemError(msg string) *models.RunResult {
	info := classify.Classify(msg, "")
	e.publish(events.SystemError, map[string]any{
		"error":      msg,
		"error_type": string(info.ErrorType),
		"severity":   string(info.Severity),
	}, "")
	return &models.RunResult{
		Success: false,
		Error:   msg,
		Context: map[string]any{
			"error_type":  string(info.ErrorType),
			"suggestions": info.Suggestions,
		},
	}
}

func (e *Executor) publish(typ events.EventType, payload map[string]any, runID string) {
	if e.deps.Bus == nil {
		return
	}
	ev := events.New(typ, "executor", payload)
	ev.RunID = runID
	e.deps.Bus.Publish(ev)
}

func subtaskSummaries(composite *models.CompositeTask) []map[string]any {
	out := make([]map[string]any, 0, len(composite.Subtasks))
	for _, st := range composite.Subtasks {
		out = append(out, map[string]any{
			"id":         st.ID,
			"goal":       st.Goal,
			"type":       st.Type,
			"depends_on": st.DependsOn,
		})
	}
	return out
}
