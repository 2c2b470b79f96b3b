package orchestrator

import (
	"context"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// Publisher receives lifecycle events. *coord.EventChannel implements it.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// StateRecorder is the part of the coordination store the scheduler writes.
// *coord.Store implements it.
type StateRecorder interface {
	RecordTaskState(ctx context.Context, sessionID, taskID string, ts models.TaskState) error
}
