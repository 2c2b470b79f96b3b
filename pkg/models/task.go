// Package models holds the data types shared across the orchestration engine.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates a worker is executing the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed or was cancelled.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Settled reports whether the status is terminal.
// A failed task is settled just like a completed one.
func (s TaskStatus) Settled() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents a unit of work in a dependency graph.
type Task struct {
	// ID is unique within a graph.
	ID string `json:"id"`
	// Name is the short human-readable label.
	Name string `json:"name"`
	// Description provides detailed information about the work.
	Description string `json:"description,omitempty"`
	// Intent is the request intent type the task was planned under.
	Intent string `json:"intent,omitempty"`
	// WorkerType is the capability tag of the worker that runs the task.
	WorkerType string `json:"worker_type"`
	// Skills lists the skill tags the worker needs.
	Skills []string `json:"skills,omitempty"`
	// DependsOn lists task IDs that must settle before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// EstimatedDuration is advisory only.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result holds the worker output, if any.
	Result string `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when the task entered running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task settled.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Skills = append([]string(nil), t.Skills...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// Duration returns how long the task ran, or zero if it never settled.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
