package models

// RunResult is the aggregated outcome of one composite execution.
type RunResult struct {
	// Success is true only when every subtask succeeded.
	Success bool `json:"success"`
	// Context is the final execution context: per-subtask outputs and
	// counts on success, an error context on the fatal path.
	Context map[string]any `json:"context,omitempty"`
	// Plan is the composite task that was executed, nil when
	// decomposition never produced one.
	Plan *CompositeTask `json:"plan,omitempty"`
	// Error is the user-facing failure report, if any.
	Error string `json:"error,omitempty"`
	// Iterations is the number of scheduling iterations consumed.
	Iterations int `json:"iterations"`
}
