package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/internal/api"
	"github.com/ShayCichocki/nexus/pkg/models"
)

const samplePlan = `Here is the plan:
{
  "intent": {"type": "code", "complexity": "moderate", "required_capabilities": ["python"]},
  "steps": [
    {"id": "step_1", "name": "Design API", "agent_type": "CodeAgent", "dependencies": [], "estimated_duration": 120},
    {"id": "step_2", "name": "Implement endpoints", "agent_type": "CodeAgent", "dependencies": ["step_1"], "estimated_duration": 300}
  ],
  "critical_path": ["step_1", "step_2"]
}`

const yamlPlan = "```yaml\n" + `intent:
  type: writing
steps:
  - id: outline
    name: Outline
    agent_type: writing
  - id: draft
    description: Write the draft
    dependencies: [outline]
` + "```"

func TestParse_JSON(t *testing.T) {
	p, err := Parse(samplePlan)
	require.NoError(t, err)

	assert.Equal(t, "code", p.Intent.Type)
	assert.Equal(t, models.ComplexityModerate, p.Intent.Complexity)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "code", p.Steps[0].AgentType)
	assert.Equal(t, []string{"step_1"}, p.Steps[1].Dependencies)
	assert.Equal(t, []string{"step_1", "step_2"}, p.CriticalPath)
	assert.Equal(t, 420, p.TotalEstimatedDuration)
}

func TestParse_YAMLFallback(t *testing.T) {
	p, err := Parse(yamlPlan)
	require.NoError(t, err)

	assert.Equal(t, "writing", p.Intent.Type)
	assert.Equal(t, models.ComplexityModerate, p.Intent.Complexity, "missing complexity defaults")
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "draft", p.Steps[1].Name, "name defaults to id")
	assert.Equal(t, []string{"outline"}, p.Steps[1].Dependencies)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		resp  string
		stage Stage
	}{
		{"prose", "I cannot help with that.", StageParse},
		{"no steps", `{"intent": {"type": "code"}, "steps": []}`, StageParse},
		{"missing id", `{"steps": [{"name": "a"}]}`, StageValidate},
		{"duplicate id", `{"steps": [{"id": "a", "name": "x"}, {"id": "a", "name": "y"}]}`, StageValidate},
		{"nameless", `{"steps": [{"id": "a"}]}`, StageValidate},
		{"negative duration", `{"steps": [{"id": "a", "name": "x", "estimated_duration": -1}]}`, StageValidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.resp)
			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.stage, perr.Stage)
		})
	}
}

func TestTranslator_Plan(t *testing.T) {
	var gotPrompt string
	var gotOpts api.CompleteOptions
	c := api.CompleterFunc(func(ctx context.Context, prompt string, opts api.CompleteOptions) (string, error) {
		gotPrompt, gotOpts = prompt, opts
		return samplePlan, nil
	})

	tr := NewTranslator(c, WithWorkerTypes(func() []string { return []string{"generic", "code"} }))
	p, err := tr.Plan(context.Background(), "Build a Flask REST API", map[string]any{"language": "python"})
	require.NoError(t, err)
	assert.Len(t, p.Steps, 2)

	assert.Contains(t, gotPrompt, "Build a Flask REST API")
	assert.Contains(t, gotPrompt, "generic, code")
	assert.Contains(t, gotPrompt, `"language": "python"`)
	assert.Equal(t, api.FormatStructured, gotOpts.ResponseFormat)
}

func TestTranslator_CompleterFailure(t *testing.T) {
	boom := errors.New("overloaded")
	c := api.CompleterFunc(func(ctx context.Context, prompt string, opts api.CompleteOptions) (string, error) {
		return "", boom
	})

	_, err := NewTranslator(c).Plan(context.Background(), "anything", nil)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageComplete, perr.Stage)
	assert.ErrorIs(t, err, boom)
}

func TestTranslator_EmptyRequest(t *testing.T) {
	_, err := NewTranslator(nil).Plan(context.Background(), "   ", nil)
	assert.Error(t, err)
}

func TestNormalizeWorkerType(t *testing.T) {
	tests := map[string]string{
		"CodeAgent":       "code",
		"research_agent":  "research",
		"Writing Worker":  "writing",
		"GeneralAgent":    "generic",
		"generic":         "generic",
		"":                "",
		"agent":           "agent",
		" Data ":          "data",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeWorkerType(in), in)
	}
}
