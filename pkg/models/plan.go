package models

import "time"

// Intent is the planner's classification of a request.
type Intent struct {
	// Type is a short intent label such as "code" or "research".
	Type string `json:"type" yaml:"type"`
	// Complexity is the estimated difficulty.
	Complexity Complexity `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	// RequiredCapabilities lists capability tags the request needs.
	RequiredCapabilities []string `json:"required_capabilities,omitempty" yaml:"required_capabilities,omitempty"`
}

// PlanStep is a single step of a structured plan.
type PlanStep struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	AgentType    string   `json:"agent_type,omitempty" yaml:"agent_type,omitempty"`
	Skills       []string `json:"skills,omitempty" yaml:"skills,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// EstimatedDuration is in seconds.
	EstimatedDuration int `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty"`
}

// Plan is the structured translation of a free-text request.
type Plan struct {
	Intent       Intent     `json:"intent" yaml:"intent"`
	Steps        []PlanStep `json:"steps" yaml:"steps"`
	CriticalPath []string   `json:"critical_path,omitempty" yaml:"critical_path,omitempty"`
	// TotalEstimatedDuration is in seconds.
	TotalEstimatedDuration int `json:"total_estimated_duration,omitempty" yaml:"total_estimated_duration,omitempty"`
}

// Tasks converts the plan steps into pending tasks.
// Worker types are copied verbatim; routing happens later.
func (p *Plan) Tasks() []*Task {
	tasks := make([]*Task, 0, len(p.Steps))
	for _, step := range p.Steps {
		desc := step.Description
		if desc == "" {
			desc = step.Name
		}
		tasks = append(tasks, &Task{
			ID:                step.ID,
			Name:              step.Name,
			Description:       desc,
			Intent:            p.Intent.Type,
			WorkerType:        step.AgentType,
			Skills:            append([]string(nil), step.Skills...),
			DependsOn:         append([]string(nil), step.Dependencies...),
			EstimatedDuration: time.Duration(step.EstimatedDuration) * time.Second,
			Status:            TaskStatusPending,
		})
	}
	return tasks
}
