package api

import "context"

// ResponseFormat selects how the model is asked to shape its answer.
type ResponseFormat string

const (
	// FormatText asks for free prose.
	FormatText ResponseFormat = "text"
	// FormatStructured asks for a single JSON document.
	FormatStructured ResponseFormat = "structured"
)

// CompleteOptions tunes a single completion call.
type CompleteOptions struct {
	SystemPrompt   string
	Temperature    *float64
	MaxTokens      int
	ResponseFormat ResponseFormat
}

// Chunk is one increment of a streamed completion.
// A chunk with a non-nil Err is the last one sent.
type Chunk struct {
	Text string
	Err  error
}

// Completer is the text-completion service used for planning and routing.
// Implementations are fallible and latent; callers pass a context with
// whatever deadline they need.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
	StreamComplete(ctx context.Context, prompt string, opts CompleteOptions) (<-chan Chunk, error)
}

// CompleterFunc adapts a function to the Completer interface.
// StreamComplete delivers the whole answer as one chunk.
type CompleterFunc func(ctx context.Context, prompt string, opts CompleteOptions) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	return f(ctx, prompt, opts)
}

// StreamComplete calls f and emits its result as a single chunk.
func (f CompleterFunc) StreamComplete(ctx context.Context, prompt string, opts CompleteOptions) (<-chan Chunk, error) {
	out := make(chan Chunk, 1)
	text, err := f(ctx, prompt, opts)
	if err != nil {
		out <- Chunk{Err: err}
	} else {
		out <- Chunk{Text: text}
	}
	close(out)
	return out, nil
}

// Float returns a pointer to v, for CompleteOptions.Temperature.
func Float(v float64) *float64 { return &v }
