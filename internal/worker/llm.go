package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/nexus/internal/api"
)

// LLMWorker completes a task by prompting a text-completion service.
type LLMWorker struct {
	id           string
	workerType   string
	completer    api.Completer
	systemPrompt string
}

// NewLLMWorker creates an LLM-backed worker. persona describes the worker's
// specialty and becomes part of the system prompt.
func NewLLMWorker(workerType string, completer api.Completer, persona string) *LLMWorker {
	if persona == "" {
		persona = "a general purpose assistant"
	}
	return &LLMWorker{
		id:         newID(workerType),
		workerType: workerType,
		completer:  completer,
		systemPrompt: fmt.Sprintf(
			"You are the %s worker in a multi-step task pipeline, %s. "+
				"Complete only the task you are given and reply with the result.",
			workerType, persona),
	}
}

// LLMFactory returns a Factory producing LLM workers. persona may be nil.
func LLMFactory(completer api.Completer, persona func(workerType string) string) Factory {
	return func(workerType string) (Worker, error) {
		if completer == nil {
			return nil, fmt.Errorf("no completer configured for %s worker", workerType)
		}
		var p string
		if persona != nil {
			p = persona(workerType)
		}
		return NewLLMWorker(workerType, completer, p), nil
	}
}

func (w *LLMWorker) ID() string   { return w.id }
func (w *LLMWorker) Type() string { return w.workerType }

// Execute sends the task with its dependency results to the completer.
func (w *LLMWorker) Execute(ctx context.Context, in Input) (string, error) {
	out, err := w.completer.Complete(ctx, buildTaskPrompt(in), api.CompleteOptions{
		SystemPrompt: w.systemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("%s worker: %w", w.workerType, err)
	}
	return strings.TrimSpace(out), nil
}

func buildTaskPrompt(in Input) string {
	var b strings.Builder
	t := in.Task

	fmt.Fprintf(&b, "## Task: %s\n\n%s\n", t.Name, t.Description)
	if t.Intent != "" {
		fmt.Fprintf(&b, "\nOverall intent: %s\n", t.Intent)
	}
	if len(in.Skills) > 0 {
		fmt.Fprintf(&b, "\nSkills to apply: %s\n", strings.Join(in.Skills, ", "))
	}

	if len(in.Dependencies) > 0 {
		ids := make([]string, 0, len(in.Dependencies))
		for id := range in.Dependencies {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		b.WriteString("\n## Results from previous steps\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "\n### %s\n%s\n", id, in.Dependencies[id])
		}
	}

	if len(in.Context) > 0 {
		if ctxJSON, err := json.MarshalIndent(in.Context, "", "  "); err == nil {
			fmt.Fprintf(&b, "\n## Request context\n%s\n", ctxJSON)
		}
	}
	return b.String()
}
