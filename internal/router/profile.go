// Package router matches tasks to worker capability profiles.
package router

// CapabilityProfile describes what a worker type is good at.
// Profiles are only routing input; the worker itself lives elsewhere.
type CapabilityProfile struct {
	// WorkerType is the capability tag used to acquire a worker.
	WorkerType string `json:"worker_type" yaml:"worker_type" toml:"worker_type"`
	// Description is free text; the heuristic scorer matches the intent against it.
	Description string `json:"description" yaml:"description" toml:"description"`
	// Category groups profiles, e.g. "code" or "data".
	Category string `json:"category,omitempty" yaml:"category" toml:"category"`
	// Disabled keeps the profile registered but out of routing.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled" toml:"disabled"`
	// IdealTasks lists keywords of tasks this worker handles well.
	IdealTasks []string `json:"ideal_tasks" yaml:"ideal_tasks" toml:"ideal_tasks"`
	// Skills lists the skill tags the worker brings.
	Skills []string `json:"skills" yaml:"skills" toml:"skills"`
}

// TaskDescriptor is the routing view of a task.
type TaskDescriptor struct {
	Description  string
	Intent       string
	Capabilities []string
	Complexity   string
}

// RoutingMatch is one scored profile for a task.
type RoutingMatch struct {
	WorkerType      string   `json:"worker_type"`
	Confidence      float64  `json:"confidence"`
	Rationale       string   `json:"rationale"`
	SuggestedSkills []string `json:"suggested_skills,omitempty"`
}

// DefaultProfiles returns the built-in profiles, generic first.
func DefaultProfiles() []CapabilityProfile {
	return []CapabilityProfile{
		{
			WorkerType:  "generic",
			Category:    "general",
			Description: "General purpose assistant for questions, explanations and mixed requests",
			IdealTasks:  []string{"explain", "answer", "summarize", "general"},
			Skills:      []string{"reasoning", "summarization"},
		},
		{
			WorkerType:  "code",
			Category:    "code",
			Description: "Writes, reviews and refactors source code; code generation and debugging",
			IdealTasks:  []string{"implement", "code", "refactor", "debug", "api", "function", "test"},
			Skills:      []string{"python", "go", "javascript", "testing", "code_review"},
		},
		{
			WorkerType:  "research",
			Category:    "research",
			Description: "Gathers and compares information; research and analysis of sources",
			IdealTasks:  []string{"research", "investigate", "compare", "find", "analyze"},
			Skills:      []string{"search", "analysis", "citation"},
		},
		{
			WorkerType:  "writing",
			Category:    "writing",
			Description: "Drafts and edits documents, articles and documentation; writing tasks",
			IdealTasks:  []string{"write", "draft", "document", "edit", "article", "readme"},
			Skills:      []string{"copywriting", "editing", "documentation"},
		},
		{
			WorkerType:  "data",
			Category:    "data",
			Description: "Transforms, cleans and reports on tabular data; data analysis",
			IdealTasks:  []string{"data", "csv", "report", "chart", "statistics", "sql"},
			Skills:      []string{"sql", "statistics", "visualization"},
		},
	}
}
