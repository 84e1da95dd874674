package taskctx

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionContext is the cross-subtask blackboard, one per user session.
// It is the only channel through which one subtask's output becomes
// visible to a later subtask; there is no direct parameter wiring.
// All mutation happens on the controller goroutine; persistence goes
// through the memory store under the session working-state key.
type SessionContext struct {
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Variables holds cross-subtask values (outputs, preferences, ...).
	Variables map[string]any
	// Artifacts is the ordered list of artifact records produced in
	// this session. Each record is a flat map (id, type, uri, meta).
	Artifacts []map[string]any
}

// NewSession creates a fresh session context. An empty id gets a
// generated one.
func NewSession(sessionID string) *SessionContext {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	return &SessionContext{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		Variables: make(map[string]any),
		Artifacts: nil,
	}
}

// SetVariable stores a value and bumps UpdatedAt.
func (s *SessionContext) SetVariable(key string, value any) {
	s.Variables[key] = value
	s.UpdatedAt = time.Now()
}

// Variable returns the stored value, or nil if absent.
func (s *SessionContext) Variable(key string) any {
	return s.Variables[key]
}

// AddArtifact appends an artifact record and bumps UpdatedAt.
func (s *SessionContext) AddArtifact(artifact map[string]any) {
	s.Artifacts = append(s.Artifacts, artifact)
	s.UpdatedAt = time.Now()
}

// WorkingStateKey is the memory-store key convention for a session.
func WorkingStateKey(sessionID string) string {
	return fmt.Sprintf("session:%s:context", sessionID)
}

// ToMap serializes the session for the memory store.
func (s *SessionContext) ToMap() map[string]any {
	return map[string]any{
		"session_id": s.SessionID,
		"created_at": s.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": s.UpdatedAt.Format(time.RFC3339Nano),
		"variables":  s.Variables,
		"artifacts":  s.Artifacts,
	}
}

// SessionFromMap restores a session from its stored form. Missing
// fields get sane defaults so old snapshots keep loading.
func SessionFromMap(data map[string]any) (*SessionContext, error) {
	id, _ := data["session_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("session data missing session_id")
	}

	s := &SessionContext{
		SessionID: id,
		CreatedAt: parseTime(data["created_at"]),
		UpdatedAt: parseTime(data["updated_at"]),
		Variables: make(map[string]any),
	}
	if vars, ok := data["variables"].(map[string]any); ok {
		s.Variables = vars
	}
	switch arts := data["artifacts"].(type) {
	case []map[string]any:
		s.Artifacts = arts
	case []any:
		for _, a := range arts {
			if m, ok := a.(map[string]any); ok {
				s.Artifacts = append(s.Artifacts, m)
			}
		}
	}
	return s, nil
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	case time.Time:
		return t
	}
	return time.Now()
}

// Blackboard key conventions. Downstream subtasks read upstream values
// by these names; nothing else wires subtasks together.

// OutputKey is the convention key for a subtask's main output.
func OutputKey(subtaskID string) string {
	return fmt.Sprintf("subtask_%s_output", subtaskID)
}

// FieldKey is the convention key for one named output field.
func FieldKey(subtaskID, field string) string {
	return fmt.Sprintf("subtask_%s_%s", subtaskID, field)
}

// VarKey is the convention key for a synced task-context variable.
func VarKey(subtaskID, name string) string {
	return fmt.Sprintf("subtask_%s_var_%s", subtaskID, name)
}

// UpstreamKey is the task-context variable under which a dependency's
// main output is injected for the running plan.
func UpstreamKey(depID string) string {
	return fmt.Sprintf("upstream_%s", depID)
}
