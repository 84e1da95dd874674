// Package playbook implements the planning collaborators from a static
// YAML playbook, so composite tasks can run offline without a model in
// the loop. The playbook names each subtask, its dependency edges, the
// plan steps to run, and optional fallback steps used when replanning.
package playbook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StepDef is one plan step in a playbook.
type StepDef struct {
	ID          string         `yaml:"id"`
	Skill       string         `yaml:"skill"`
	Description string         `yaml:"description"`
	Params      map[string]any `yaml:"params"`
}

// SubtaskDef is one subtask in a playbook.
type SubtaskDef struct {
	ID              string    `yaml:"id"`
	Goal            string    `yaml:"goal"`
	Type            string    `yaml:"type"`
	DependsOn       []string  `yaml:"depends_on"`
	ExpectedOutputs []string  `yaml:"expected_outputs"`
	Steps           []StepDef `yaml:"steps"`
	FallbackSteps   []StepDef `yaml:"fallback_steps"`
}

// Playbook is a parsed playbook file.
type Playbook struct {
	Name     string              `yaml:"name"`
	Guards   map[string][]string `yaml:"guards"`
	Subtasks []SubtaskDef        `yaml:"subtasks"`
}

// Load reads and validates a playbook file.
func Load(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook: %w", err)
	}
	return Parse(data)
}

// Parse decodes playbook YAML.
func Parse(data []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}
	if err := pb.validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

func (pb *Playbook) validate() error {
	if len(pb.Subtasks) == 0 {
		return fmt.Errorf("playbook %q has no subtasks", pb.Name)
	}
	seen := make(map[string]bool, len(pb.Subtasks))
	for _, st := range pb.Subtasks {
		if st.ID == "" {
			return fmt.Errorf("playbook %q: subtask with empty id", pb.Name)
		}
		if seen[st.ID] {
			return fmt.Errorf("playbook %q: duplicate subtask id %q", pb.Name, st.ID)
		}
		seen[st.ID] = true
		if len(st.Steps) == 0 {
			return fmt.Errorf("playbook %q: subtask %q has no steps", pb.Name, st.ID)
		}
		for _, step := range st.Steps {
			if step.Skill == "" {
				return fmt.Errorf("playbook %q: subtask %q step %q has no skill", pb.Name, st.ID, step.ID)
			}
		}
	}
	for _, st := range pb.Subtasks {
		for _, dep := range st.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("playbook %q: subtask %q depends on unknown subtask %q", pb.Name, st.ID, dep)
			}
		}
	}
	return nil
}

// Subtask looks up a subtask definition by id.
func (pb *Playbook) Subtask(id string) *SubtaskDef {
	for i := range pb.Subtasks {
		if pb.Subtasks[i].ID == id {
			return &pb.Subtasks[i]
		}
	}
	return nil
}
