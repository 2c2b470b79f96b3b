package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateTask indicates a task ID was added twice.
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrUnknownDependency indicates a task depends on an ID not in the graph.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrCycleDetected indicates a circular dependency was found in the task graph.
	ErrCycleDetected = errors.New("circular dependency detected")
)

// DuplicateTaskError is returned by AddTask when the ID already exists.
type DuplicateTaskError struct {
	ID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateTask, e.ID)
}

func (e *DuplicateTaskError) Unwrap() error { return ErrDuplicateTask }

// UnknownDependencyError is returned by Validate when a dependency ID is missing.
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DependencyID)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// CircularDependencyError is returned when a walk revisits an in-progress node.
// Path lists the IDs on the walk stack, ending with the revisited node.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycleDetected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CircularDependencyError) Unwrap() error { return ErrCycleDetected }
