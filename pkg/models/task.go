package models

// SubTaskStatus represents the current state of a subtask.
type SubTaskStatus string

const (
	// SubTaskPending indicates the subtask has not started.
	SubTaskPending SubTaskStatus = "pending"
	// SubTaskRunning indicates the subtask is being executed.
	SubTaskRunning SubTaskStatus = "running"
	// SubTaskSuccess indicates the subtask completed successfully.
	SubTaskSuccess SubTaskStatus = "success"
	// SubTaskFailed indicates the subtask failed.
	SubTaskFailed SubTaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s SubTaskStatus) Valid() bool {
	switch s {
	case SubTaskPending, SubTaskRunning, SubTaskSuccess, SubTaskFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s SubTaskStatus) Terminal() bool {
	return s == SubTaskSuccess || s == SubTaskFailed
}

// SubTask is one node in a composite task's dependency graph.
// It owns the outcome of exactly one low-level plan execution.
type SubTask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// Goal is the natural-language goal of the subtask.
	Goal string `json:"goal"`
	// Type classifies the subtask for capability-guard purposes
	// (e.g. "file", "chat", "compute"). Empty means unconstrained.
	Type string `json:"type,omitempty"`
	// DependsOn lists subtask IDs that must succeed before this one runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current lifecycle state.
	Status SubTaskStatus `json:"status"`
	// ExpectedOutputs names the outputs or file targets this subtask
	// is expected to produce, in order.
	ExpectedOutputs []string `json:"expected_outputs,omitempty"`
	// TaskID is the ID of the low-level plan once one has been created.
	TaskID string `json:"task_id,omitempty"`
	// TaskResult holds the executed low-level plan. Opaque to the
	// scheduling layer; only output collection inspects it.
	TaskResult *Plan `json:"-"`
	// ActualOutputs holds the outputs collected after execution.
	ActualOutputs map[string]any `json:"actual_outputs,omitempty"`
	// Error contains the failure description if the subtask failed.
	Error string `json:"error,omitempty"`
}

// CompositeTask is one decomposed user request, modeled as a DAG of
// subtasks. Dependency references must resolve within the same
// composite; cycles are rejected upstream, not here.
type CompositeTask struct {
	// ID is the unique identifier for this composite task.
	ID string `json:"id"`
	// Subtasks is the ordered sequence of subtasks.
	Subtasks []*SubTask `json:"subtasks"`
	// Metadata carries request-scoped values. It must carry session_id
	// when one is available.
	Metadata map[string]any `json:"metadata,omitempty"`

	// NeedsFallback is advisory state set by the scheduling loop when
	// the run has largely failed. Consumed only when the failure
	// report is assembled.
	NeedsFallback bool `json:"-"`
}

// Subtask returns the subtask with the given ID, or nil.
func (c *CompositeTask) Subtask(id string) *SubTask {
	for _, st := range c.Subtasks {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// ReadySubtasks returns, in declaration order, the pending subtasks
// whose every dependency has succeeded.
func (c *CompositeTask) ReadySubtasks() []*SubTask {
	var ready []*SubTask
	for _, st := range c.Subtasks {
		if st.Status != SubTaskPending {
			continue
		}
		ok := true
		for _, depID := range st.DependsOn {
			dep := c.Subtask(depID)
			if dep == nil || dep.Status != SubTaskSuccess {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, st)
		}
	}
	return ready
}

// CompletedSubtasks returns the subtasks that succeeded, in order.
func (c *CompositeTask) CompletedSubtasks() []*SubTask {
	var done []*SubTask
	for _, st := range c.Subtasks {
		if st.Status == SubTaskSuccess {
			done = append(done, st)
		}
	}
	return done
}

// HasFailed returns true if any subtask has failed.
func (c *CompositeTask) HasFailed() bool {
	for _, st := range c.Subtasks {
		if st.Status == SubTaskFailed {
			return true
		}
	}
	return false
}

// CountByStatus returns the number of subtasks in the given state.
func (c *CompositeTask) CountByStatus(status SubTaskStatus) int {
	n := 0
	for _, st := range c.Subtasks {
		if st.Status == status {
			n++
		}
	}
	return n
}

// StatusCounts returns the number of subtasks in each state.
func (c *CompositeTask) StatusCounts() map[SubTaskStatus]int {
	counts := make(map[SubTaskStatus]int, 4)
	for _, st := range c.Subtasks {
		counts[st.Status]++
	}
	return counts
}

// IsComplete returns true when every subtask is terminal, or when no
// remaining subtask can ever become ready because a dependency (direct
// or transitive) has failed. Such subtasks stay pending ("skipped").
func (c *CompositeTask) IsComplete() bool {
	memo := make(map[string]bool, len(c.Subtasks))
	for _, st := range c.Subtasks {
		switch st.Status {
		case SubTaskSuccess, SubTaskFailed:
			continue
		case SubTaskRunning:
			return false
		}
		if c.canSucceed(st, memo) {
			return false
		}
	}
	return true
}

// canSucceed reports whether the subtask could still reach success,
// i.e. none of its transitive dependencies has failed. An unresolved
// dependency reference counts as unsatisfiable.
func (c *CompositeTask) canSucceed(st *SubTask, memo map[string]bool) bool {
	if v, ok := memo[st.ID]; ok {
		return v
	}
	switch st.Status {
	case SubTaskSuccess:
		memo[st.ID] = true
		return true
	case SubTaskFailed:
		memo[st.ID] = false
		return false
	}
	memo[st.ID] = false
	ok := true
	for _, depID := range st.DependsOn {
		dep := c.Subtask(depID)
		if dep == nil || !c.canSucceed(dep, memo) {
			ok = false
			break
		}
	}
	memo[st.ID] = ok
	return ok
}

// SessionID returns the session_id metadata value, if present.
func (c *CompositeTask) SessionID() string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata["session_id"].(string); ok {
		return v
	}
	return ""
}
