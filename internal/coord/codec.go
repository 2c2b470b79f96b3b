package coord

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// Hash field names of a persisted session.
const (
	fieldSessionID = "sessionId"
	fieldStatus    = "status"
	fieldIntent    = "intent"
	fieldPlan      = "plan"
	fieldTasks     = "tasks"
	fieldMetrics   = "metrics"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

// encodeState flattens a session into hash fields. Complex values are JSON.
func encodeState(s *models.SessionState) (map[string]string, error) {
	fields := map[string]string{
		fieldSessionID: s.SessionID,
		fieldStatus:    string(s.Status),
		fieldIntent:    s.Intent,
		fieldCreatedAt: s.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	if s.Plan != nil {
		plan, err := json.Marshal(s.Plan)
		if err != nil {
			return nil, fmt.Errorf("encode plan: %w", err)
		}
		fields[fieldPlan] = string(plan)
	}

	tasks, err := encodeTasks(s)
	if err != nil {
		return nil, err
	}
	fields[fieldTasks] = tasks[fieldTasks]
	fields[fieldMetrics] = tasks[fieldMetrics]
	return fields, nil
}

// encodeTasks returns only the fields touched by a task transition.
func encodeTasks(s *models.SessionState) (map[string]string, error) {
	tasks := s.Tasks
	if tasks == nil {
		tasks = map[string]models.TaskState{}
	}
	t, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	m, err := json.Marshal(s.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	return map[string]string{
		fieldTasks:     string(t),
		fieldMetrics:   string(m),
		fieldUpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// decodeState rebuilds a session from hash fields.
func decodeState(fields map[string]string) (*models.SessionState, error) {
	s := &models.SessionState{
		SessionID: fields[fieldSessionID],
		Status:    models.SessionStatus(fields[fieldStatus]),
		Intent:    fields[fieldIntent],
		Tasks:     map[string]models.TaskState{},
	}

	if raw := fields[fieldPlan]; raw != "" {
		s.Plan = &models.Plan{}
		if err := json.Unmarshal([]byte(raw), s.Plan); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
	}
	if raw := fields[fieldTasks]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
	}
	if raw := fields[fieldMetrics]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}

	var err error
	if s.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("decode createdAt: %w", err)
	}
	if s.UpdatedAt, err = parseTime(fields[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("decode updatedAt: %w", err)
	}
	return s, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// cloneState returns an independent copy of a session.
func cloneState(s *models.SessionState) *models.SessionState {
	fields, err := encodeState(s)
	if err != nil {
		return nil
	}
	out, err := decodeState(fields)
	if err != nil {
		return nil
	}
	return out
}
