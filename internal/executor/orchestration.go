package executor

import (
	"github.com/google/uuid"

	"github.com/sethgrantham/baton/pkg/models"
)

// StandardOrchestration is the default Orchestration implementation:
// it stamps subtask intents with session metadata and collects outputs
// from a finished plan's step results.
type StandardOrchestration struct{}

func (StandardOrchestration) CreateSubtaskIntent(subtask *models.SubTask, composite *models.CompositeTask, intent *models.Intent, completed []*models.SubTask) (*models.Intent, error) {
	out := &models.Intent{
		ID:      uuid.NewString(),
		Request: subtask.Goal,
		Type:    subtask.Type,
		Params: map[string]any{
			"subtask_id": subtask.ID,
		},
		Metadata: map[string]any{},
	}

	if composite != nil {
		if sid, ok := composite.Metadata["session_id"]; ok {
			out.Metadata["session_id"] = sid
		}
		out.Metadata["composite_id"] = composite.ID
	}
	if intent != nil {
		out.Domain = intent.Domain
		out.Metadata["parent_intent_id"] = intent.ID
	}

	ids := make([]string, 0, len(completed))
	for _, st := range completed {
		ids = append(ids, st.ID)
	}
	out.Metadata["completed_subtasks"] = ids
	return out, nil
}

func (StandardOrchestration) CollectSubtaskOutputs(subtask *models.SubTask, plan *models.Plan, _ *models.CompositeTask) (map[string]any, error) {
	outputs := make(map[string]any)
	if plan == nil {
		return outputs, nil
	}

	for _, step := range plan.Steps {
		if step.Result != nil && step.Result.Success && step.Result.Output != nil {
			outputs[step.ID] = step.Result.Output
		}
	}

	// Mirror the last textual step output under "content" so expected
	// output files can be materialized from it.
	for i := len(plan.Steps) - 1; i >= 0; i-- {
		step := plan.Steps[i]
		if step.Result == nil || !step.Result.Success {
			continue
		}
		if s, ok := step.Result.Output.(string); ok && s != "" {
			outputs["content"] = s
			break
		}
	}
	return outputs, nil
}
