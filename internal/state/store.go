package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TaskRun records one composite task execution for history queries.
type TaskRun struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Request    string     `json:"request"`
	Success    bool       `json:"success"`
	Partial    bool       `json:"partial"`
	Subtasks   int        `json:"subtasks"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Iterations int        `json:"iterations"`
	Error      string     `json:"error"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// Working state operations.
//
// Working state is a key/value blackboard of JSON documents. Task and
// session contexts snapshot themselves here so a later run can pick up
// where an earlier one left off.

// SetWorkingState stores a JSON document under the given key,
// replacing any previous value.
func (db *DB) SetWorkingState(key string, value map[string]any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal working state %q: %w", key, err)
	}

	_, err = db.Exec(`
		INSERT INTO working_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(blob), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set working state %q: %w", key, err)
	}
	return nil
}

// GetWorkingState retrieves the JSON document stored under key.
// It returns nil with no error when the key is absent.
func (db *DB) GetWorkingState(key string) (map[string]any, error) {
	row := db.QueryRow(`SELECT value FROM working_state WHERE key = ?`, key)

	var blob string
	err := row.Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get working state %q: %w", key, err)
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(blob), &value); err != nil {
		return nil, fmt.Errorf("decode working state %q: %w", key, err)
	}
	return value, nil
}

// DeleteWorkingState removes the document stored under key.
func (db *DB) DeleteWorkingState(key string) error {
	if _, err := db.Exec(`DELETE FROM working_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete working state %q: %w", key, err)
	}
	return nil
}

// Task run history operations.

// RecordTaskRun inserts a task run row.
func (db *DB) RecordTaskRun(r *TaskRun) error {
	var finished any
	if r.FinishedAt != nil {
		finished = formatTime(*r.FinishedAt)
	}

	_, err := db.Exec(`
		INSERT INTO task_runs (id, session_id, request, success, partial, subtasks, succeeded, failed, iterations, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.SessionID, r.Request, boolToInt(r.Success), boolToInt(r.Partial),
		r.Subtasks, r.Succeeded, r.Failed,
		r.Iterations, r.Error, formatTime(r.StartedAt), finished)
	if err != nil {
		return fmt.Errorf("record task run: %w", err)
	}
	return nil
}

// GetTaskRun retrieves a task run by ID. Returns nil when not found.
func (db *DB) GetTaskRun(id string) (*TaskRun, error) {
	row := db.QueryRow(`
		SELECT id, session_id, request, success, partial, subtasks, succeeded, failed, iterations, error, started_at, finished_at
		FROM task_runs WHERE id = ?
	`, id)

	r, err := scanTaskRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task run: %w", err)
	}
	return r, nil
}

// ListTaskRuns returns runs for a session, most recent first.
func (db *DB) ListTaskRuns(sessionID string, limit int) ([]*TaskRun, error) {
	rows, err := db.Query(`
		SELECT id, session_id, request, success, partial, subtasks, succeeded, failed, iterations, error, started_at, finished_at
		FROM task_runs WHERE session_id = ?
		ORDER BY started_at DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		r, err := scanTaskRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRecentRuns returns the most recent runs across all sessions.
func (db *DB) ListRecentRuns(limit int) ([]*TaskRun, error) {
	rows, err := db.Query(`
		SELECT id, session_id, request, success, partial, subtasks, succeeded, failed, iterations, error, started_at, finished_at
		FROM task_runs
		ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		r, err := scanTaskRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanTaskRun(scan func(...any) error) (*TaskRun, error) {
	var r TaskRun
	var success, partial int
	var errMsg sql.NullString
	var startedAt string
	var finishedAt sql.NullString

	if err := scan(&r.ID, &r.SessionID, &r.Request, &success, &partial,
		&r.Subtasks, &r.Succeeded, &r.Failed,
		&r.Iterations, &errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	r.Success = success != 0
	r.Partial = partial != 0
	r.Error = errMsg.String
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
