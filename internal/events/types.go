// Package events provides the synchronous in-process event bus, the
// event model, and the bridge that forwards bus events to an
// asynchronous transport.
package events

import "time"

// EventType identifies the kind of an event. The enumeration is closed;
// new lifecycle markers are added here, not invented by publishers.
type EventType string

const (
	// System
	SystemStart EventType = "system.start"
	SystemError EventType = "system.error"

	// Plan
	PlanGenerated  EventType = "plan.generated"
	PlanUpdated    EventType = "plan.updated"
	PlanReplanning EventType = "plan.replanning"

	// Task
	TaskUpdated    EventType = "task.updated"
	TaskCompleted  EventType = "task.completed"
	TaskThinking   EventType = "task.thinking"
	TaskDecomposed EventType = "task.decomposed"

	// Subtask
	SubtaskStart    EventType = "subtask.start"
	SubtaskProgress EventType = "subtask.progress"
	SubtaskComplete EventType = "subtask.complete"
	SubtaskFailed   EventType = "subtask.failed"

	// Step
	StepStart   EventType = "step.start"
	StepEnd     EventType = "step.end"
	StepSkipped EventType = "step.skipped"
	StepFailed  EventType = "step.failed"

	// LLM
	LLMStart EventType = "llm.start"
	LLMToken EventType = "llm.token"
	LLMEnd   EventType = "llm.end"

	// Skill
	SkillStart    EventType = "skill.start"
	SkillProgress EventType = "skill.progress"
	SkillEnd      EventType = "skill.end"

	// Filesystem
	FileCreated  EventType = "file.created"
	FileModified EventType = "file.modified"
	FileDeleted  EventType = "file.deleted"
	DirCreated   EventType = "dir.created"
	DirDeleted   EventType = "dir.deleted"
)

// Event is an immutable notification published on the bus.
type Event struct {
	// Type is the event kind.
	Type EventType
	// Source names the publishing component ("executor", "runner", ...).
	Source string
	// Payload carries event-specific values.
	Payload map[string]any
	// Timestamp is when the event was created.
	Timestamp time.Time
	// RunID optionally correlates the event with a composite run.
	RunID string
	// StepID optionally correlates the event with a plan step.
	StepID string
}

// New creates an event with the timestamp set to now.
func New(typ EventType, source string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		Type:      typ,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
