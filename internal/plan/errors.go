package plan

import "fmt"

// Stage names the phase of translation that failed.
type Stage string

const (
	StageComplete Stage = "complete"
	StageParse    Stage = "parse"
	StageValidate Stage = "validate"
)

// Error is returned for any translation failure.
type Error struct {
	Stage Stage
	// Response is the raw model output, when there was one.
	Response string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plan %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
