package models

import "time"

// EventKind identifies a lifecycle transition.
type EventKind string

const (
	EventSessionStarted   EventKind = "session.started"
	EventSessionCompleted EventKind = "session.completed"
	EventSessionFailed    EventKind = "session.failed"
	EventTaskStarted      EventKind = "task.started"
	EventTaskCompleted    EventKind = "task.completed"
	EventTaskFailed       EventKind = "task.failed"
	EventTaskCancelled    EventKind = "task.cancelled"
)

// Event is the envelope published on every session or task transition.
// Delivery is best-effort and at-most-once.
type Event struct {
	Kind      EventKind      `json:"kind"`
	SessionID string         `json:"sessionId"`
	TaskID    string         `json:"taskId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
