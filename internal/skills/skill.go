// Package skills provides the capability registry and the per-type
// capability guard consulted before plan steps run.
package skills

import (
	"context"

	"github.com/sethgrantham/baton/internal/taskctx"
)

// Skill is one executable capability a plan step can invoke.
type Skill interface {
	// Name returns the canonical skill name.
	Name() string
	// Aliases returns alternative names the skill answers to.
	Aliases() []string
	// Execute runs the skill with the step's params against the
	// current task context.
	Execute(ctx context.Context, params map[string]any, tc *taskctx.TaskContext) (any, error)
}
