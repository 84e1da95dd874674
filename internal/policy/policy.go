// Package policy decides when a composite run should stop early.
package policy

// FailurePolicy is consulted once per subtask failure to decide whether
// the run should abandon remaining work.
type FailurePolicy interface {
	// ShouldStop reports whether the run should stop after the given
	// subtask failed, with failedCount cumulative failures so far.
	ShouldStop(subtaskID string, failedCount int) bool
}

// StopAfter stops once the cumulative failure count reaches N.
// N <= 0 means never stop.
type StopAfter struct {
	N int
}

func (p StopAfter) ShouldStop(_ string, failedCount int) bool {
	return p.N > 0 && failedCount >= p.N
}

// StopOnFirst stops on the first failed subtask.
type StopOnFirst struct{}

func (StopOnFirst) ShouldStop(_ string, failedCount int) bool {
	return failedCount >= 1
}

// Continue never stops; every reachable subtask gets its chance.
type Continue struct{}

func (Continue) ShouldStop(string, int) bool { return false }
