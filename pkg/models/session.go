package models

import "time"

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionRunning, SessionCompleted, SessionFailed:
		return true
	default:
		return false
	}
}

// TaskState is the per-task record kept in shared session state.
type TaskState struct {
	Status      TaskStatus `json:"status"`
	AgentType   string     `json:"agentType,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SessionMetrics holds aggregate counters for a session.
type SessionMetrics struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
}

// SessionState is the shared record of one request's lifetime.
type SessionState struct {
	SessionID string               `json:"sessionId"`
	Status    SessionStatus        `json:"status"`
	Intent    string               `json:"intent,omitempty"`
	Plan      *Plan                `json:"plan,omitempty"`
	Tasks     map[string]TaskState `json:"tasks"`
	Metrics   SessionMetrics       `json:"metrics"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// NewSessionState creates a running session record for a plan.
func NewSessionState(id string, plan *Plan, now time.Time) *SessionState {
	s := &SessionState{
		SessionID: id,
		Status:    SessionRunning,
		Plan:      plan,
		Tasks:     make(map[string]TaskState),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if plan != nil {
		s.Intent = plan.Intent.Type
		s.Metrics.TotalTasks = len(plan.Steps)
		for _, step := range plan.Steps {
			s.Tasks[step.ID] = TaskState{Status: TaskStatusPending, AgentType: step.AgentType}
		}
	}
	return s
}

// ApplyTask records a task transition and recomputes the completed counter.
func (s *SessionState) ApplyTask(taskID string, ts TaskState, now time.Time) {
	if s.Tasks == nil {
		s.Tasks = make(map[string]TaskState)
	}
	s.Tasks[taskID] = ts
	completed := 0
	for _, t := range s.Tasks {
		if t.Status == TaskStatusCompleted {
			completed++
		}
	}
	s.Metrics.CompletedTasks = completed
	if len(s.Tasks) > s.Metrics.TotalTasks {
		s.Metrics.TotalTasks = len(s.Tasks)
	}
	s.UpdatedAt = now
}

// StateOf builds the shared record for a task.
func StateOf(t *Task) TaskState {
	return TaskState{
		Status:      t.Status,
		AgentType:   t.WorkerType,
		Result:      t.Result,
		Error:       t.Error,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}
