package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/nexus/internal/api"
)

// Heuristic weights for the deterministic scorer.
const (
	baseScore      = 0.3
	keywordWeight  = 0.15
	skillWeight    = 0.1
	intentBonus    = 0.2
	collabPrimary  = 0.6
	collabSecond   = 0.5
	collabMaxDelta = 0.15
)

// errNoScores is returned when a semantic response names no known profile.
var errNoScores = errors.New("semantic response scored no known profile")

const routingSystemPrompt = `You assign tasks to worker types. Judge how well each worker profile fits the task.
Confidence is a number between 0 and 1.`

const routingPromptTemplate = `Task description: %s
Intent: %s
Required capabilities: %s
Complexity: %s

Worker profiles:
%s
Return ONLY a JSON object with this exact structure:
{
  "matches": [
    {"worker_type": "...", "confidence": 0.0, "rationale": "...", "suggested_skills": ["..."]}
  ]
}`

// semanticResponse is the JSON structure returned by the model.
type semanticResponse struct {
	Matches []RoutingMatch `json:"matches"`
}

// Router scores capability profiles against a task.
// With a nil completer it only uses the heuristic scorer.
type Router struct {
	completer  api.Completer
	timeout    time.Duration
	logger     *slog.Logger
	onFallback func(error)
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout bounds the semantic scoring call.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFallbackHook registers a callback invoked whenever the heuristic scorer is used
// because semantic scoring failed.
func WithFallbackHook(fn func(error)) Option {
	return func(r *Router) { r.onFallback = fn }
}

// New creates a Router. completer may be nil.
func New(completer api.Completer, opts ...Option) *Router {
	r := &Router{
		completer: completer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route scores every profile for the task and returns matches sorted by
// descending confidence, ties kept in profile order.
func (r *Router) Route(ctx context.Context, task TaskDescriptor, profiles []CapabilityProfile) []RoutingMatch {
	if len(profiles) == 0 {
		return nil
	}

	if r.completer != nil {
		matches, err := r.semantic(ctx, task, profiles)
		if err == nil {
			return matches
		}
		r.logger.Warn("semantic routing failed, using heuristic scorer", "error", err)
		if r.onFallback != nil {
			r.onFallback(err)
		}
	}

	return Heuristic(task, profiles)
}

// semantic asks the completer to score all profiles in one call.
func (r *Router) semantic(ctx context.Context, task TaskDescriptor, profiles []CapabilityProfile) ([]RoutingMatch, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	prompt := buildRoutingPrompt(task, profiles)
	raw, err := r.completer.Complete(ctx, prompt, api.CompleteOptions{
		SystemPrompt:   routingSystemPrompt,
		Temperature:    api.Float(0),
		ResponseFormat: api.FormatStructured,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic scoring: %w", err)
	}

	var resp semanticResponse
	if err := api.DecodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("semantic scoring: %w", err)
	}

	byType := make(map[string]RoutingMatch, len(resp.Matches))
	for _, m := range resp.Matches {
		if _, seen := byType[m.WorkerType]; !seen {
			byType[m.WorkerType] = m
		}
	}

	matches := make([]RoutingMatch, 0, len(profiles))
	scored := 0
	for _, p := range profiles {
		m, ok := byType[p.WorkerType]
		if !ok {
			matches = append(matches, RoutingMatch{WorkerType: p.WorkerType, Rationale: "not scored"})
			continue
		}
		scored++
		m.Confidence = clamp(m.Confidence)
		if len(m.SuggestedSkills) == 0 {
			m.SuggestedSkills = append([]string(nil), p.Skills...)
		}
		matches = append(matches, m)
	}
	if scored == 0 {
		return nil, errNoScores
	}

	sortMatches(matches)
	return matches, nil
}

func buildRoutingPrompt(task TaskDescriptor, profiles []CapabilityProfile) string {
	var b strings.Builder
	for i, p := range profiles {
		fmt.Fprintf(&b, "%d. worker_type=%s\n   description: %s\n   ideal tasks: %s\n   skills: %s\n",
			i+1, p.WorkerType, p.Description, strings.Join(p.IdealTasks, ", "), strings.Join(p.Skills, ", "))
	}
	return fmt.Sprintf(routingPromptTemplate,
		task.Description, task.Intent, strings.Join(task.Capabilities, ", "), task.Complexity, b.String())
}

// Heuristic is the deterministic scorer used when semantic scoring is
// unavailable. Same input always yields the same ordering.
func Heuristic(task TaskDescriptor, profiles []CapabilityProfile) []RoutingMatch {
	text := strings.ToLower(task.Description + " " + task.Intent)
	intent := strings.ToLower(strings.TrimSpace(task.Intent))

	declared := make(map[string]bool, len(task.Capabilities))
	for _, c := range task.Capabilities {
		declared[strings.ToLower(c)] = true
	}

	matches := make([]RoutingMatch, 0, len(profiles))
	for _, p := range profiles {
		score := baseScore

		var keywords []string
		for _, kw := range p.IdealTasks {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				score += keywordWeight
				keywords = append(keywords, kw)
			}
		}

		var overlap []string
		for _, skill := range p.Skills {
			if declared[strings.ToLower(skill)] {
				score += skillWeight
				overlap = append(overlap, skill)
			}
		}

		intentHit := intent != "" && strings.Contains(strings.ToLower(p.Description), intent)
		if intentHit {
			score += intentBonus
		}

		suggested := overlap
		if len(suggested) == 0 {
			suggested = append([]string(nil), p.Skills...)
		}

		matches = append(matches, RoutingMatch{
			WorkerType:      p.WorkerType,
			Confidence:      clamp(score),
			Rationale:       fmt.Sprintf("heuristic: keywords=%v skills=%v intent=%t", keywords, overlap, intentHit),
			SuggestedSkills: suggested,
		})
	}

	sortMatches(matches)
	return matches
}

// ShouldCollaborate reports whether the top two matches are both strong and
// close enough that a single worker-type assignment is ambiguous.
// It never blocks and never calls the completer.
func ShouldCollaborate(matches []RoutingMatch) bool {
	if len(matches) < 2 {
		return false
	}
	primary, secondary := matches[0].Confidence, matches[1].Confidence
	if primary < secondary {
		primary, secondary = secondary, primary
	}
	return primary > collabPrimary && secondary > collabSecond && primary-secondary < collabMaxDelta
}

// Best returns the top match, or false if there is none.
func Best(matches []RoutingMatch) (RoutingMatch, bool) {
	if len(matches) == 0 {
		return RoutingMatch{}, false
	}
	return matches[0], true
}

func sortMatches(matches []RoutingMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
