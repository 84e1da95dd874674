package state

import "io"

// WorkingStateStore handles blackboard snapshot persistence.
type WorkingStateStore interface {
	SetWorkingState(key string, value map[string]any) error
	GetWorkingState(key string) (map[string]any, error)
	DeleteWorkingState(key string) error
}

// RunStore handles task run history persistence.
type RunStore interface {
	RecordTaskRun(r *TaskRun) error
	GetTaskRun(id string) (*TaskRun, error)
	ListTaskRuns(sessionID string, limit int) ([]*TaskRun, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence.
// The executor works against this interface rather than the concrete
// SQLite implementation, so tests can substitute an in-memory backend.
type Store interface {
	io.Closer
	Migrator
	WorkingStateStore
	RunStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store             = (*DB)(nil)
	_ Migrator          = (*DB)(nil)
	_ WorkingStateStore = (*DB)(nil)
	_ RunStore          = (*DB)(nil)
)
