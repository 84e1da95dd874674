// Package executor drives one composite task through decomposition,
// dependency-aware scheduling, validation, replanning, fallback
// escalation, and blackboard synchronization.
package executor

import (
	"context"

	"github.com/sethgrantham/baton/internal/state"
	"github.com/sethgrantham/baton/internal/taskctx"
	"github.com/sethgrantham/baton/pkg/models"
)

// Decomposer turns a raw request into a composite task graph.
type Decomposer interface {
	Decompose(ctx context.Context, request string, intent *models.Intent, env map[string]any) (*models.CompositeTask, error)
}

// Orchestration resolves dependencies and collects outputs for one
// subtask. Pure with respect to the graph.
type Orchestration interface {
	CreateSubtaskIntent(subtask *models.SubTask, composite *models.CompositeTask, intent *models.Intent, completed []*models.SubTask) (*models.Intent, error)
	CollectSubtaskOutputs(subtask *models.SubTask, plan *models.Plan, composite *models.CompositeTask) (map[string]any, error)
}

// Planner produces an ordered list of executable steps for an intent.
type Planner interface {
	MakeTask(ctx context.Context, intent *models.Intent, env map[string]any, tc *taskctx.TaskContext) (*models.Plan, error)
}

// Validator checks a plan's step parameters against a validation
// context. Side-effect-free.
type Validator interface {
	ValidateAndResolveParams(plan *models.Plan, vctx map[string]any) models.ValidationResult
}

// Replanner revises a failing plan in place. It reports whether it
// produced a usable revision.
type Replanner interface {
	Replan(ctx context.Context, plan *models.Plan, failedStep *models.Step, env map[string]any) (bool, error)
}

// DAGRunner executes all steps of one plan, honoring the capability
// guard for the subtask's declared type, and sets the plan status
// terminal.
type DAGRunner interface {
	Run(ctx context.Context, plan *models.Plan, tc *taskctx.TaskContext, subtaskType string) error
}

// MemoryStore persists working state and task run history.
// *state.DB satisfies this.
type MemoryStore interface {
	GetWorkingState(key string) (map[string]any, error)
	SetWorkingState(key string, value map[string]any) error
	RecordTaskRun(r *state.TaskRun) error
}

// FailurePolicy is consulted once per subtask failure.
type FailurePolicy interface {
	ShouldStop(subtaskID string, failedCount int) bool
}

// Fallback produces a best-effort generic response when the composite
// has largely failed. It never raises the overall task to success.
type Fallback interface {
	Respond(ctx context.Context, userMessage, reason string) (string, error)
}

// PlanCache stores validated plans for reuse. Rejection is non-fatal.
type PlanCache interface {
	Store(plan *models.Plan) error
}

var _ MemoryStore = (*state.DB)(nil)
