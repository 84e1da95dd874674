package models

import "time"

// PlanStatus represents the state of a low-level plan.
type PlanStatus string

const (
	// PlanPending indicates the plan has not started.
	PlanPending PlanStatus = "pending"
	// PlanRunning indicates steps are being executed.
	PlanRunning PlanStatus = "running"
	// PlanSuccess indicates every step completed successfully.
	PlanSuccess PlanStatus = "success"
	// PlanFailed indicates execution failed.
	PlanFailed PlanStatus = "failed"
	// PlanPartialSuccess indicates some steps succeeded and some failed.
	PlanPartialSuccess PlanStatus = "partial_success"
)

// StepStatus represents the state of a single plan step.
type StepStatus string

const (
	// StepPending indicates the step has not run.
	StepPending StepStatus = "pending"
	// StepRunning indicates the step is executing.
	StepRunning StepStatus = "running"
	// StepSuccess indicates the step completed successfully.
	StepSuccess StepStatus = "success"
	// StepFailed indicates the step failed.
	StepFailed StepStatus = "failed"
	// StepSkipped indicates the step was not run.
	StepSkipped StepStatus = "skipped"
)

// StepResult is the outcome of executing one step.
type StepResult struct {
	// Success reports whether the step succeeded.
	Success bool `json:"success"`
	// Output is the skill's output. Usually a map of named values.
	Output any `json:"output,omitempty"`
	// Error describes the failure, if any.
	Error string `json:"error,omitempty"`
	// Duration is how long the step took.
	Duration time.Duration `json:"duration,omitempty"`
}

// Step is one atomic "invoke this skill" unit of a plan.
type Step struct {
	// ID is the unique identifier for this step.
	ID string `json:"id"`
	// Order is the step's position in the plan.
	Order int `json:"order"`
	// SkillName names the capability this step invokes.
	SkillName string `json:"skill_name"`
	// Params are the resolved parameters passed to the skill.
	Params map[string]any `json:"params,omitempty"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// Result is set after the step has run.
	Result *StepResult `json:"result,omitempty"`
	// DependsOn lists step IDs this step waits for.
	DependsOn []string `json:"depends_on,omitempty"`
	// Description is an optional human-readable summary.
	Description string `json:"description,omitempty"`
}

// Plan is an ordered list of executable steps produced by a planner
// for a single subtask.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// Goal is the goal this plan was generated for.
	Goal string `json:"goal"`
	// IntentID links back to the intent that produced the plan.
	IntentID string `json:"intent_id,omitempty"`
	// Steps is the ordered step list.
	Steps []*Step `json:"steps"`
	// Status is the overall plan state.
	Status PlanStatus `json:"status"`
	// CreatedAt is when the plan was generated.
	CreatedAt time.Time `json:"created_at"`
	// Metadata carries plan-scoped values such as session_id.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AddStep appends a step to the plan.
func (p *Plan) AddStep(s *Step) {
	p.Steps = append(p.Steps, s)
}

// FailedSteps returns the steps that failed, in order.
func (p *Plan) FailedSteps() []*Step {
	var failed []*Step
	for _, s := range p.Steps {
		if s.Status == StepFailed {
			failed = append(failed, s)
		}
	}
	return failed
}
