package executor

import (
	"fmt"
	"strings"

	"github.com/sethgrantham/baton/pkg/models"
)

// buildFailureReport renders the user-facing summary of an unsuccessful
// run: which subtasks failed and why, and which never ran because a
// dependency failed.
func buildFailureReport(composite *models.CompositeTask) string {
	var failed, skipped []*models.SubTask
	for _, st := range composite.Subtasks {
		switch st.Status {
		case models.SubTaskFailed:
			failed = append(failed, st)
		case models.SubTaskPending:
			skipped = append(skipped, st)
		}
	}

	var b strings.Builder
	counts := composite.StatusCounts()
	fmt.Fprintf(&b, "Task did not complete successfully: %d of %d subtasks succeeded.\n",
		counts[models.SubTaskSuccess], len(composite.Subtasks))

	if len(failed) > 0 {
		b.WriteString("\nFailed subtasks:\n")
		for _, st := range failed {
			errMsg := st.Error
			if errMsg == "" {
				errMsg = "no error recorded"
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", st.ID, st.Goal, errMsg)
		}
	}

	if len(skipped) > 0 {
		b.WriteString("\nSkipped subtasks (blocked by failed dependencies):\n")
		for _, st := range skipped {
			fmt.Fprintf(&b, "- %s (%s) depends_on=[%s]\n",
				st.ID, st.Goal, strings.Join(st.DependsOn, ", "))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
