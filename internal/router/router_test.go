package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/internal/api"
)

func fixedCompleter(resp string, err error) api.Completer {
	return api.CompleterFunc(func(ctx context.Context, prompt string, opts api.CompleteOptions) (string, error) {
		return resp, err
	})
}

func testProfiles() []CapabilityProfile {
	return []CapabilityProfile{
		{WorkerType: "generic", Description: "general helper", IdealTasks: []string{"answer"}},
		{WorkerType: "code", Description: "code generation", IdealTasks: []string{"implement", "api"}, Skills: []string{"go", "testing"}},
		{WorkerType: "writing", Description: "writing docs", IdealTasks: []string{"document"}, Skills: []string{"editing"}},
	}
}

func TestHeuristic_Scores(t *testing.T) {
	task := TaskDescriptor{
		Description:  "Implement the REST api handlers",
		Intent:       "code generation",
		Capabilities: []string{"go"},
	}

	matches := Heuristic(task, testProfiles())
	require.Len(t, matches, 3)

	// code: base 0.3 + 2 keywords (0.3) + 1 skill (0.1) + intent (0.2)
	assert.Equal(t, "code", matches[0].WorkerType)
	assert.InDelta(t, 0.9, matches[0].Confidence, 1e-9)
	assert.Equal(t, []string{"go"}, matches[0].SuggestedSkills)

	// generic and writing both score the base; registration order breaks the tie.
	assert.Equal(t, "generic", matches[1].WorkerType)
	assert.Equal(t, "writing", matches[2].WorkerType)
	assert.InDelta(t, 0.3, matches[1].Confidence, 1e-9)
	assert.InDelta(t, 0.3, matches[2].Confidence, 1e-9)
}

func TestHeuristic_ClampsToOne(t *testing.T) {
	profile := CapabilityProfile{
		WorkerType:  "code",
		Description: "build things",
		IdealTasks:  []string{"a", "b", "c", "d", "e", "f"},
		Skills:      []string{"x", "y"},
	}
	task := TaskDescriptor{Description: "a b c d e f", Intent: "build", Capabilities: []string{"x", "y"}}

	matches := Heuristic(task, []CapabilityProfile{profile})
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].Confidence)
}

func TestHeuristic_Deterministic(t *testing.T) {
	task := TaskDescriptor{Description: "document the api", Intent: "writing"}
	first := Heuristic(task, testProfiles())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Heuristic(task, testProfiles()))
	}
}

func TestRoute_Semantic(t *testing.T) {
	resp := "```json\n" + `{"matches":[
		{"worker_type":"writing","confidence":0.7,"rationale":"docs"},
		{"worker_type":"code","confidence":1.4,"rationale":"clearly code","suggested_skills":["go"]},
		{"worker_type":"unknown","confidence":0.99}
	]}` + "\n```"
	r := New(fixedCompleter(resp, nil))

	matches := r.Route(context.Background(), TaskDescriptor{Description: "x"}, testProfiles())
	require.Len(t, matches, 3)

	assert.Equal(t, "code", matches[0].WorkerType)
	assert.Equal(t, 1.0, matches[0].Confidence, "confidence is clamped")
	assert.Equal(t, []string{"go"}, matches[0].SuggestedSkills)
	assert.Equal(t, "writing", matches[1].WorkerType)
	assert.Equal(t, []string{"editing"}, matches[1].SuggestedSkills)
	assert.Equal(t, "generic", matches[2].WorkerType)
	assert.Equal(t, 0.0, matches[2].Confidence)
}

func TestRoute_FallbackOnError(t *testing.T) {
	var fallbacks int
	r := New(fixedCompleter("", errors.New("boom")), WithFallbackHook(func(error) { fallbacks++ }))

	task := TaskDescriptor{Description: "implement api", Intent: "code"}
	matches := r.Route(context.Background(), task, testProfiles())

	assert.Equal(t, Heuristic(task, testProfiles()), matches)
	assert.Equal(t, 1, fallbacks)
}

func TestRoute_FallbackOnGarbage(t *testing.T) {
	tests := []struct {
		name string
		resp string
	}{
		{"not json", "I think code is best"},
		{"no known profiles", `{"matches":[{"worker_type":"other","confidence":0.9}]}`},
		{"empty matches", `{"matches":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fallbacks int
			r := New(fixedCompleter(tt.resp, nil), WithFallbackHook(func(error) { fallbacks++ }))
			task := TaskDescriptor{Description: "write a document"}

			matches := r.Route(context.Background(), task, testProfiles())
			assert.Equal(t, Heuristic(task, testProfiles()), matches)
			assert.Equal(t, 1, fallbacks)
		})
	}
}

func TestRoute_FallbackOnTimeout(t *testing.T) {
	slow := api.CompleterFunc(func(ctx context.Context, prompt string, opts api.CompleteOptions) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := New(slow, WithTimeout(10*time.Millisecond))

	task := TaskDescriptor{Description: "answer a question"}
	matches := r.Route(context.Background(), task, testProfiles())
	require.NotEmpty(t, matches)
	assert.Equal(t, "generic", matches[0].WorkerType)
}

func TestRoute_NilCompleterIsHeuristic(t *testing.T) {
	r := New(nil)
	task := TaskDescriptor{Description: "implement api"}
	assert.Equal(t, Heuristic(task, testProfiles()), r.Route(context.Background(), task, testProfiles()))
	assert.Nil(t, r.Route(context.Background(), task, nil))
}

func TestRoute_StructuredRequest(t *testing.T) {
	var got api.CompleteOptions
	c := api.CompleterFunc(func(ctx context.Context, prompt string, opts api.CompleteOptions) (string, error) {
		got = opts
		assert.Contains(t, prompt, "worker_type=code")
		return `{"matches":[{"worker_type":"code","confidence":0.5}]}`, nil
	})

	New(c).Route(context.Background(), TaskDescriptor{Description: "x"}, testProfiles())
	assert.Equal(t, api.FormatStructured, got.ResponseFormat)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)
}

func TestShouldCollaborate(t *testing.T) {
	tests := []struct {
		name    string
		matches []RoutingMatch
		want    bool
	}{
		{"empty", nil, false},
		{"single", []RoutingMatch{{Confidence: 0.9}}, false},
		{"close and strong", []RoutingMatch{{Confidence: 0.8}, {Confidence: 0.7}}, true},
		{"gap too large", []RoutingMatch{{Confidence: 0.9}, {Confidence: 0.7}}, false},
		{"secondary weak", []RoutingMatch{{Confidence: 0.62}, {Confidence: 0.5}}, false},
		{"primary weak", []RoutingMatch{{Confidence: 0.6}, {Confidence: 0.55}}, false},
		{"unsorted input", []RoutingMatch{{Confidence: 0.7}, {Confidence: 0.8}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCollaborate(tt.matches))
		})
	}
}

func TestBest(t *testing.T) {
	_, ok := Best(nil)
	assert.False(t, ok)

	m, ok := Best([]RoutingMatch{{WorkerType: "a"}, {WorkerType: "b"}})
	assert.True(t, ok)
	assert.Equal(t, "a", m.WorkerType)
}
