package taskctx

import (
	"reflect"
	"testing"
	"time"
)

func TestSessionSetVariableBumpsUpdatedAt(t *testing.T) {
	s := NewSession("sess-1")
	before := s.UpdatedAt
	time.Sleep(time.Millisecond)

	s.SetVariable("k", "v")
	if !s.UpdatedAt.After(before) {
		t.Error("SetVariable must advance UpdatedAt")
	}
	if s.Variable("k") != "v" {
		t.Errorf("Variable(k) = %v, want v", s.Variable("k"))
	}
}

func TestSessionAddArtifactBumpsUpdatedAt(t *testing.T) {
	s := NewSession("sess-1")
	before := s.UpdatedAt
	time.Sleep(time.Millisecond)

	s.AddArtifact(map[string]any{"id": "a1", "type": "file", "uri": "/tmp/a"})
	if !s.UpdatedAt.After(before) {
		t.Error("AddArtifact must advance UpdatedAt")
	}
	if len(s.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(s.Artifacts))
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := NewSession("sess-rt")
	s.SetVariable("subtask_a_output", "hello")
	s.SetVariable("count", 3)
	s.AddArtifact(map[string]any{"id": "a1", "type": "file", "uri": "/tmp/a"})
	s.AddArtifact(map[string]any{"id": "a2", "type": "image", "uri": "/tmp/b"})

	restored, err := SessionFromMap(s.ToMap())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if restored.SessionID != s.SessionID {
		t.Errorf("session id = %q, want %q", restored.SessionID, s.SessionID)
	}
	if !restored.CreatedAt.Equal(s.CreatedAt) {
		t.Errorf("created_at not preserved: %v vs %v", restored.CreatedAt, s.CreatedAt)
	}
	if !restored.UpdatedAt.Equal(s.UpdatedAt) {
		t.Errorf("updated_at not preserved: %v vs %v", restored.UpdatedAt, s.UpdatedAt)
	}
	if !reflect.DeepEqual(restored.Variables, s.Variables) {
		t.Errorf("variables not preserved: %v vs %v", restored.Variables, s.Variables)
	}
	if !reflect.DeepEqual(restored.Artifacts, s.Artifacts) {
		t.Errorf("artifacts not preserved: %v vs %v", restored.Artifacts, s.Artifacts)
	}
}

func TestSessionFromMapMissingFields(t *testing.T) {
	// Old snapshots may lack optional fields.
	s, err := SessionFromMap(map[string]any{"session_id": "old"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Variables == nil {
		t.Error("variables should default to an empty map")
	}

	if _, err := SessionFromMap(map[string]any{}); err == nil {
		t.Error("missing session_id should be an error")
	}
}

func TestSessionFromMapJSONArtifacts(t *testing.T) {
	// After a JSON round trip artifacts arrive as []any.
	data := map[string]any{
		"session_id": "sess-j",
		"artifacts": []any{
			map[string]any{"id": "a1", "type": "file"},
		},
	}
	s, err := SessionFromMap(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Artifacts) != 1 || s.Artifacts[0]["id"] != "a1" {
		t.Errorf("artifacts not restored from []any: %v", s.Artifacts)
	}
}

func TestBlackboardKeyConventions(t *testing.T) {
	if got := OutputKey("t1"); got != "subtask_t1_output" {
		t.Errorf("OutputKey = %q", got)
	}
	if got := FieldKey("t1", "path"); got != "subtask_t1_path" {
		t.Errorf("FieldKey = %q", got)
	}
	if got := VarKey("t1", "summary"); got != "subtask_t1_var_summary" {
		t.Errorf("VarKey = %q", got)
	}
	if got := UpstreamKey("t1"); got != "upstream_t1" {
		t.Errorf("UpstreamKey = %q", got)
	}
	if got := WorkingStateKey("s1"); got != "session:s1:context" {
		t.Errorf("WorkingStateKey = %q", got)
	}
}
