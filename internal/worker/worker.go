// Package worker provides task executors and the pool the scheduler draws them from.
package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// GenericType is the worker type used when nothing more specific is registered.
const GenericType = "generic"

// Input is everything a worker gets for one task.
type Input struct {
	SessionID string
	Task      *models.Task
	// Skills are the routing-suggested skills for this task.
	Skills []string
	// Dependencies maps each completed dependency ID to its result.
	Dependencies map[string]string
	// Context is the caller-supplied request context.
	Context map[string]any
}

// Worker executes tasks of one type. Implementations need not be safe for
// concurrent use; the pool hands each instance to one task at a time.
type Worker interface {
	ID() string
	Type() string
	Execute(ctx context.Context, in Input) (string, error)
}

// newID returns a short worker ID prefixed with its type.
func newID(workerType string) string {
	return fmt.Sprintf("%s-%s", workerType, uuid.New().String()[:8])
}
