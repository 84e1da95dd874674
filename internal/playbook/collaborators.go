package playbook

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sethgrantham/baton/internal/taskctx"
	"github.com/sethgrantham/baton/pkg/models"
)

// Decomposer builds a composite task from the playbook's subtask list.
type Decomposer struct {
	Playbook *Playbook
}

func (d *Decomposer) Decompose(_ context.Context, request string, intent *models.Intent, _ map[string]any) (*models.CompositeTask, error) {
	composite := &models.CompositeTask{
		ID: uuid.NewString(),
		Metadata: map[string]any{
			"request":  request,
			"playbook": d.Playbook.Name,
		},
	}
	if intent != nil {
		if sid, ok := intent.Metadata["session_id"]; ok {
			composite.Metadata["session_id"] = sid
		}
	}

	for _, def := range d.Playbook.Subtasks {
		composite.Subtasks = append(composite.Subtasks, &models.SubTask{
			ID:              def.ID,
			Goal:            def.Goal,
			Type:            def.Type,
			DependsOn:       append([]string(nil), def.DependsOn...),
			ExpectedOutputs: append([]string(nil), def.ExpectedOutputs...),
			Status:          models.SubTaskPending,
		})
	}
	return composite, nil
}

// Planner turns a subtask intent into a concrete plan using the
// playbook's step definitions.
type Planner struct {
	Playbook *Playbook
}

func (p *Planner) MakeTask(_ context.Context, intent *models.Intent, _ map[string]any, _ *taskctx.TaskContext) (*models.Plan, error) {
	subtaskID, _ := intent.Params["subtask_id"].(string)
	def := p.Playbook.Subtask(subtaskID)
	if def == nil {
		return nil, fmt.Errorf("no playbook entry for subtask %q", subtaskID)
	}

	plan := &models.Plan{
		ID:        uuid.NewString(),
		Goal:      def.Goal,
		IntentID:  intent.ID,
		Status:    models.PlanPending,
		CreatedAt: time.Now(),
		Metadata: map[string]any{
			"subtask_id": def.ID,
		},
	}
	for i, sd := range def.Steps {
		plan.AddStep(stepFromDef(sd, i))
	}
	return plan, nil
}

func stepFromDef(sd StepDef, order int) *models.Step {
	id := sd.ID
	if id == "" {
		id = fmt.Sprintf("step-%d", order+1)
	}
	params := make(map[string]any, len(sd.Params))
	for k, v := range sd.Params {
		params[k] = v
	}
	return &models.Step{
		ID:          id,
		Order:       order,
		SkillName:   sd.Skill,
		Params:      params,
		Status:      models.StepPending,
		Description: sd.Description,
	}
}

// Validator checks that every "${name}" placeholder in the plan's step
// params can be resolved from the validation context. It never mutates
// the plan.
type Validator struct{}

func (Validator) ValidateAndResolveParams(plan *models.Plan, vctx map[string]any) models.ValidationResult {
	missing := map[string]bool{}
	for _, step := range plan.Steps {
		for _, name := range Placeholders(step.Params) {
			if _, ok := vctx[name]; !ok {
				missing[name] = true
			}
		}
	}
	if len(missing) == 0 {
		return models.ValidationResult{Success: true}
	}

	var result models.ValidationResult
	for name := range missing {
		result.MissingParams = append(result.MissingParams, name)
	}
	sort.Strings(result.MissingParams)
	result.Error = fmt.Sprintf("unresolved params: %s", strings.Join(result.MissingParams, ", "))
	return result
}

// Placeholders returns the names referenced as "${name}" in param
// string values.
func Placeholders(params map[string]any) []string {
	var names []string
	for _, v := range params {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
			names = append(names, s[2:len(s)-1])
		}
	}
	sort.Strings(names)
	return names
}

// Replanner swaps a failing plan's steps for the playbook's fallback
// steps. The swap happens at most once per plan.
type Replanner struct {
	Playbook *Playbook
}

func (r *Replanner) Replan(_ context.Context, plan *models.Plan, _ *models.Step, _ map[string]any) (bool, error) {
	subtaskID, _ := plan.Metadata["subtask_id"].(string)
	def := r.Playbook.Subtask(subtaskID)
	if def == nil || len(def.FallbackSteps) == 0 {
		return false, nil
	}
	if replanned, _ := plan.Metadata["replanned"].(bool); replanned {
		return false, nil
	}

	plan.Steps = nil
	for i, sd := range def.FallbackSteps {
		plan.AddStep(stepFromDef(sd, i))
	}
	plan.Status = models.PlanPending
	plan.Metadata["replanned"] = true
	return true, nil
}
