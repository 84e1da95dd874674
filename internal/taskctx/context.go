// Package taskctx holds the execution state model: the per-plan
// TaskContext and the session-scoped blackboard shared across subtasks.
package taskctx

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sethgrantham/baton/pkg/models"
)

// TaskState is the lifecycle state of one plan execution.
type TaskState string

const (
	StatePending        TaskState = "PENDING"
	StatePlanning       TaskState = "PLANNING"
	StateRunning        TaskState = "RUNNING"
	StateWaiting        TaskState = "WAITING"
	StateCompleted      TaskState = "SUCCESS"
	StateFailed         TaskState = "FAILED"
	StateCancelled      TaskState = "CANCELLED"
	StatePartialSuccess TaskState = "PARTIAL_SUCCESS"
)

// Snapshotter persists working state. Snapshot failures are swallowed
// by the context; persistence is best-effort, never fatal.
type Snapshotter interface {
	SetWorkingState(key string, value map[string]any) error
}

// Identity identifies one plan execution.
type Identity struct {
	TaskID    string
	SessionID string
	ParentID  string
	Initiator string
	CreatedAt time.Time
}

// Goal is what the plan execution is trying to achieve.
type Goal struct {
	Description      string
	StructuredIntent map[string]any
	Constraints      map[string]any
}

// RepairAttempt records one local repair try.
type RepairAttempt struct {
	Attempt   int
	Timestamp time.Time
	PatchType string
	PatchData map[string]any
	// Result is "success", "failed", or "validation_failed".
	Result     string
	ErrorAfter string
}

// RepairState tracks an in-progress local repair loop.
type RepairState struct {
	Repairing      bool
	CurrentAttempt int
	MaxAttempts    int
	FailedStepID   string
	OriginalError  string
	History        []RepairAttempt
	LastRepairAt   time.Time
}

// NewRepairState returns a repair state with the default attempt cap.
func NewRepairState() RepairState {
	return RepairState{MaxAttempts: 3}
}

// CanRetry reports whether another repair attempt is allowed.
func (r *RepairState) CanRetry() bool {
	return r.CurrentAttempt < r.MaxAttempts
}

// AddAttempt appends an attempt to the history and advances the counter.
func (r *RepairState) AddAttempt(a RepairAttempt) {
	r.History = append(r.History, a)
	r.CurrentAttempt = a.Attempt
	r.LastRepairAt = a.Timestamp
}

// Status tracks plan progress.
type Status struct {
	State       TaskState
	CurrentStep int
	TotalSteps  int
	StartTime   time.Time
	EndTime     time.Time
	Error       map[string]any
	Repair      RepairState
}

// Progress returns completion as a fraction in [0, 1].
func (s *Status) Progress() float64 {
	if s.TotalSteps == 0 {
		return 0
	}
	p := float64(s.CurrentStep) / float64(s.TotalSteps)
	if p > 1 {
		return 1
	}
	return p
}

// Variables is the free-form key/value store for a plan execution.
type Variables struct {
	Inputs map[string]any
	Vars   map[string]any
}

// Set stores a variable.
func (v *Variables) Set(key string, value any) {
	v.Vars[key] = value
}

// Get returns a variable, or nil if absent.
func (v *Variables) Get(key string) any {
	return v.Vars[key]
}

// Artifact is one produced file or resource record.
type Artifact struct {
	ID   string
	Type string
	URI  string
	Meta map[string]any
}

// Artifacts is the ordered list of artifacts a plan produced.
type Artifacts struct {
	Items []Artifact
}

// Add records a new artifact and returns it.
func (a *Artifacts) Add(typ, uri string, meta map[string]any) Artifact {
	if meta == nil {
		meta = map[string]any{}
	}
	art := Artifact{ID: uuid.NewString(), Type: typ, URI: uri, Meta: meta}
	a.Items = append(a.Items, art)
	return art
}

// StepRecord is one executed step's history entry.
type StepRecord struct {
	StepIndex   int
	StepID      string
	SkillName   string
	Status      string
	Inputs      map[string]any
	Outputs     any
	Duration    time.Duration
	Timestamp   time.Time
	DependsOn   []string
	Description string
}

// History is the ordered record of executed steps.
type History struct {
	Steps []StepRecord
	Logs  []string
}

// AddStep appends a step record.
func (h *History) AddStep(rec StepRecord) {
	h.Steps = append(h.Steps, rec)
}

// TaskContext is the execution state for one low-level plan. It is
// exclusively owned by the subtask executing the plan; runtime
// attachments (memory store, session blackboard) are never serialized.
type TaskContext struct {
	Identity  Identity
	Goal      Goal
	Status    Status
	Variables Variables
	Artifacts Artifacts
	History   History

	memory      Snapshotter
	env         map[string]any
	attachments map[string]any
}

// New creates a context for the given goal.
func New(goalDesc, taskID, sessionID string, env map[string]any) *TaskContext {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	if env == nil {
		env = map[string]any{}
	}
	return &TaskContext{
		Identity: Identity{
			TaskID:    taskID,
			SessionID: sessionID,
			Initiator: "user",
			CreatedAt: time.Now(),
		},
		Goal: Goal{Description: goalDesc},
		Status: Status{
			State:  StatePending,
			Repair: NewRepairState(),
		},
		Variables: Variables{
			Inputs: map[string]any{},
			Vars:   map[string]any{},
		},
		env:         env,
		attachments: map[string]any{},
	}
}

// FromPlan creates a context for one plan, lifting the session id from
// the plan's metadata when present.
func FromPlan(plan *models.Plan, env map[string]any) *TaskContext {
	sessionID := ""
	if plan.Metadata != nil {
		if v, ok := plan.Metadata["session_id"].(string); ok {
			sessionID = v
		}
	}
	ctx := New(plan.Goal, plan.ID, sessionID, env)
	ctx.Status.TotalSteps = len(plan.Steps)
	return ctx
}

// TaskID returns the plan's task id.
func (c *TaskContext) TaskID() string {
	return c.Identity.TaskID
}

// Env returns the environment map.
func (c *TaskContext) Env() map[string]any {
	return c.env
}

// AttachMemory attaches the snapshotting store. Every subsequent
// mutation triggers a best-effort snapshot.
func (c *TaskContext) AttachMemory(m Snapshotter) {
	c.memory = m
}

// Attach stores a named runtime attachment (session blackboard, guard).
func (c *TaskContext) Attach(name string, obj any) {
	c.attachments[name] = obj
}

// Attachment returns a named runtime attachment, or nil.
func (c *TaskContext) Attachment(name string) any {
	return c.attachments[name]
}

// Session returns the attached session blackboard, or nil.
func (c *TaskContext) Session() *SessionContext {
	if s, ok := c.attachments["session_context"].(*SessionContext); ok {
		return s
	}
	return nil
}

// AttachSession attaches the session blackboard.
func (c *TaskContext) AttachSession(s *SessionContext) {
	c.attachments["session_context"] = s
}

// Set stores a variable and snapshots.
func (c *TaskContext) Set(key string, value any) {
	c.Variables.Set(key, value)
	c.SaveSnapshot()
}

// Get returns a variable, or nil.
func (c *TaskContext) Get(key string) any {
	return c.Variables.Get(key)
}

// SetStepResult records one step's outcome into history-adjacent
// variables and snapshots.
func (c *TaskContext) SetStepResult(stepID string, output any) {
	c.Variables.Set(fmt.Sprintf("step_result:%s", stepID), output)
	c.Variables.Set("last_output", output)
	c.Variables.Set("last_step_id", stepID)
	c.SaveSnapshot()
}

// AddArtifact records an artifact and snapshots.
func (c *TaskContext) AddArtifact(typ, uri string, meta map[string]any) Artifact {
	art := c.Artifacts.Add(typ, uri, meta)
	c.SaveSnapshot()
	return art
}

// MarkRunning moves the context to RUNNING and snapshots.
func (c *TaskContext) MarkRunning() {
	c.Status.State = StateRunning
	if c.Status.StartTime.IsZero() {
		c.Status.StartTime = time.Now()
	}
	c.SaveSnapshot()
}

// MarkFinished records the terminal state and snapshots. An unknown
// state string is treated as FAILED.
func (c *TaskContext) MarkFinished(state TaskState) {
	switch state {
	case StateCompleted, StateFailed, StateCancelled, StatePartialSuccess:
		c.Status.State = state
	default:
		c.Status.State = StateFailed
	}
	c.Status.EndTime = time.Now()
	c.SaveSnapshot()
}

// SaveSnapshot persists the serializable portion of the context through
// the attached memory store. Failures are swallowed: snapshotting is
// never allowed to fail an execution.
func (c *TaskContext) SaveSnapshot() {
	if c.memory == nil {
		return
	}
	// The error is intentionally discarded.
	_ = c.memory.SetWorkingState(
		fmt.Sprintf("task:%s:context", c.TaskID()),
		c.snapshot(),
	)
}

// snapshot serializes the persistent portion of the context. Runtime
// attachments are excluded.
func (c *TaskContext) snapshot() map[string]any {
	artifacts := make([]map[string]any, 0, len(c.Artifacts.Items))
	for _, a := range c.Artifacts.Items {
		artifacts = append(artifacts, map[string]any{
			"id": a.ID, "type": a.Type, "uri": a.URI, "meta": a.Meta,
		})
	}
	steps := make([]map[string]any, 0, len(c.History.Steps))
	for _, s := range c.History.Steps {
		steps = append(steps, map[string]any{
			"step_index": s.StepIndex,
			"step_id":    s.StepID,
			"skill_name": s.SkillName,
			"status":     s.Status,
			"timestamp":  s.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return map[string]any{
		"identity": map[string]any{
			"task_id":    c.Identity.TaskID,
			"session_id": c.Identity.SessionID,
			"parent_id":  c.Identity.ParentID,
			"initiator":  c.Identity.Initiator,
			"created_at": c.Identity.CreatedAt.Format(time.RFC3339Nano),
		},
		"goal": map[string]any{
			"description": c.Goal.Description,
		},
		"status": map[string]any{
			"state":        string(c.Status.State),
			"current_step": c.Status.CurrentStep,
			"total_steps":  c.Status.TotalSteps,
		},
		"variables": map[string]any{
			"inputs": c.Variables.Inputs,
			"vars":   c.Variables.Vars,
		},
		"artifacts": artifacts,
		"history":   steps,
	}
}
