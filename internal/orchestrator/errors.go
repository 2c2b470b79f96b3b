package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrSchedulerInvariant means the graph still has tasks but none are ready
	// and none are outstanding. It indicates a bug or an unvalidated graph.
	ErrSchedulerInvariant = errors.New("scheduler invariant violated: no ready or outstanding tasks")
	// ErrAborted is returned by Schedule after CancelAll or context cancellation.
	ErrAborted = errors.New("schedule aborted")
	// ErrNoResult is the failure reason when no task settled at all.
	ErrNoResult = errors.New("no task produced a result")
)

// PlanningError means no usable plan could be obtained for a request.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string { return fmt.Sprintf("planning failed: %v", e.Err) }
func (e *PlanningError) Unwrap() error { return e.Err }

// PlanValidationError means the plan's dependency structure is invalid:
// a cycle, an unknown dependency or a duplicate step.
type PlanValidationError struct {
	Err error
}

func (e *PlanValidationError) Error() string { return fmt.Sprintf("invalid plan: %v", e.Err) }
func (e *PlanValidationError) Unwrap() error { return e.Err }

// TaskExecutionError is recorded on a task whose worker failed.
type TaskExecutionError struct {
	TaskID     string
	WorkerType string
	Err        error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.WorkerType, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }
