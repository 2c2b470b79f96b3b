// Package plan translates free-text requests into structured plans.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/nexus/internal/api"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// Translator turns requests into plans with one completion call.
type Translator struct {
	completer   api.Completer
	workerTypes func() []string
	logger      *slog.Logger
}

// Option configures a Translator.
type Option func(*Translator)

// WithWorkerTypes lists the worker types offered to the planner.
func WithWorkerTypes(fn func() []string) Option {
	return func(t *Translator) { t.workerTypes = fn }
}

// WithLogger sets the translator logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTranslator creates a Translator.
func NewTranslator(completer api.Completer, opts ...Option) *Translator {
	t := &Translator{completer: completer, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Plan translates request. reqCtx is included in the prompt when non-empty.
func (t *Translator) Plan(ctx context.Context, request string, reqCtx map[string]any) (*models.Plan, error) {
	if strings.TrimSpace(request) == "" {
		return nil, &Error{Stage: StageValidate, Err: errors.New("empty request")}
	}

	types := []string{"generic"}
	if t.workerTypes != nil {
		if ts := t.workerTypes(); len(ts) > 0 {
			types = ts
		}
	}

	var contextBlock string
	if len(reqCtx) > 0 {
		if b, err := json.MarshalIndent(reqCtx, "", "  "); err == nil {
			contextBlock = fmt.Sprintf("\nRequest context:\n%s\n", b)
		}
	}

	prompt := fmt.Sprintf(planningPrompt, request, contextBlock, strings.Join(types, ", "))
	resp, err := t.completer.Complete(ctx, prompt, api.CompleteOptions{
		SystemPrompt:   planningSystemPrompt,
		ResponseFormat: api.FormatStructured,
	})
	if err != nil {
		return nil, &Error{Stage: StageComplete, Err: err}
	}

	p, err := Parse(resp)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("request translated", "intent", p.Intent.Type, "steps", len(p.Steps))
	return p, nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|yaml|yml)?\\s*\n(.*?)```")

// Parse decodes a planner response. JSON is tried first; YAML is accepted as
// a fallback since models occasionally answer in it. The result is validated
// and normalised.
func Parse(response string) (*models.Plan, error) {
	var p models.Plan

	jsonErr := decodeJSONPlan(response, &p)
	if jsonErr != nil {
		p = models.Plan{}
		body := response
		if m := fencePattern.FindStringSubmatch(response); m != nil {
			body = m[1]
		}
		if yamlErr := yaml.Unmarshal([]byte(body), &p); yamlErr != nil || len(p.Steps) == 0 {
			return nil, &Error{Stage: StageParse, Response: response, Err: jsonErr}
		}
	}

	if err := Validate(&p); err != nil {
		return nil, &Error{Stage: StageValidate, Response: response, Err: err}
	}
	normalize(&p)
	return &p, nil
}

func decodeJSONPlan(response string, p *models.Plan) error {
	if err := api.DecodeJSON(response, p); err != nil {
		return err
	}
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	return nil
}

// Validate checks the required fields of a plan. Dependency references and
// cycles are checked later by the dependency graph.
func Validate(p *models.Plan) error {
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}

	var problems []string
	seen := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		id := strings.TrimSpace(step.ID)
		switch {
		case id == "":
			problems = append(problems, fmt.Sprintf("step %d has no id", i))
		case seen[id]:
			problems = append(problems, fmt.Sprintf("duplicate step id %q", id))
		}
		seen[id] = true

		if strings.TrimSpace(step.Name) == "" && strings.TrimSpace(step.Description) == "" {
			problems = append(problems, fmt.Sprintf("step %q has neither name nor description", id))
		}
		if step.EstimatedDuration < 0 {
			problems = append(problems, fmt.Sprintf("step %q has negative duration", id))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// normalize fills defaults the model may omit.
func normalize(p *models.Plan) {
	p.Intent.Complexity = p.Intent.Complexity.Normalize()

	total := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		step.ID = strings.TrimSpace(step.ID)
		if step.Name == "" {
			step.Name = step.ID
		}
		step.AgentType = NormalizeWorkerType(step.AgentType)
		total += step.EstimatedDuration
	}
	if p.TotalEstimatedDuration == 0 {
		p.TotalEstimatedDuration = total
	}
}

// NormalizeWorkerType maps agent labels such as "CodeAgent" or "Research
// Worker" onto lower-case worker type tags. "general" maps to "generic".
func NormalizeWorkerType(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range []string{"_agent", " agent", "-agent", "agent", "_worker", " worker", "-worker", "worker"} {
		if strings.HasSuffix(t, suffix) && len(t) > len(suffix) {
			t = strings.TrimSuffix(t, suffix)
			break
		}
	}
	if t == "general" {
		t = "generic"
	}
	return t
}
