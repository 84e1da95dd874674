package skills

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ConstraintError reports a plan that used skills disallowed for its
// subtask's declared type. It is terminal: the scheduler must never
// retry it by relabeling the subtask, since that would let a planner
// escape capability restrictions.
type ConstraintError struct {
	SubtaskType string
	Forbidden   []string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("type constraint violation for subtask type %q: forbidden skills used: [%s]",
		e.SubtaskType, strings.Join(e.Forbidden, ", "))
}

// IsConstraintError reports whether err is a capability constraint
// violation.
func IsConstraintError(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// Guard enforces per-subtask-type skill allowlists. A type with no
// entry may use any skill.
type Guard struct {
	allowed map[string]map[string]bool
}

// NewGuard builds a guard from type → allowed skill names.
func NewGuard(allowlists map[string][]string) *Guard {
	g := &Guard{allowed: make(map[string]map[string]bool, len(allowlists))}
	for typ, names := range allowlists {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[normalize(n)] = true
		}
		g.allowed[normalize(typ)] = set
	}
	return g
}

// Check verifies every skill name against the allowlist for the given
// subtask type. It returns a *ConstraintError listing the forbidden
// skills, or nil when all are permitted.
func (g *Guard) Check(subtaskType string, skillNames []string) error {
	set, restricted := g.allowed[normalize(subtaskType)]
	if !restricted {
		return nil
	}

	var forbidden []string
	seen := make(map[string]bool)
	for _, name := range skillNames {
		n := normalize(name)
		if !set[n] && !seen[n] {
			forbidden = append(forbidden, n)
			seen[n] = true
		}
	}
	if len(forbidden) == 0 {
		return nil
	}
	sort.Strings(forbidden)
	return &ConstraintError{SubtaskType: subtaskType, Forbidden: forbidden}
}
