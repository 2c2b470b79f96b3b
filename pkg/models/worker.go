package models

// WorkerStatus represents whether a worker is executing a task.
type WorkerStatus string

const (
	WorkerIdle WorkerStatus = "idle"
	WorkerBusy WorkerStatus = "busy"
)

// WorkerInfo is the externally visible record of a worker instance.
type WorkerInfo struct {
	ID                   string       `json:"id"`
	Type                 string       `json:"type"`
	Status               WorkerStatus `json:"status"`
	TasksCompleted       int          `json:"tasksCompleted"`
	TotalExecutionTimeMs int64        `json:"totalExecutionTimeMs"`
}
