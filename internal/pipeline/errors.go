package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingInput means image, audio or text was absent from the request.
var ErrMissingInput = errors.New("missing required inputs")

// MissingInputMessage is the fixed client-facing message for ErrMissingInput.
const MissingInputMessage = "Missing required inputs"

type Stage string

const (
	StageSpeech Stage = "speech"
	StageVideo  Stage = "video"
)

// SynthesisError wraps a failure raised by one of the collaborators.
type SynthesisError struct {
	Stage Stage
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s synthesis: %v", e.Stage, e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// StagingError wraps a failure persisting an upload to the workspace.
type StagingError struct {
	Kind  string
	Cause error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Kind, e.Cause)
}

func (e *StagingError) Unwrap() error { return e.Cause }

// PublicMessage is the sanitized text safe to return to clients.
func PublicMessage(err error) string {
	var synthErr *SynthesisError
	var stageErr *StagingError

	switch {
	case errors.Is(err, ErrMissingInput):
		return MissingInputMessage
	case errors.As(err, &synthErr):
		return string(synthErr.Stage) + " synthesis failed"
	case errors.As(err, &stageErr):
		return "failed to stage upload"
	case errors.Is(err, context.Canceled):
		return "generation cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "generation timed out"
	default:
		return "internal error"
	}
}

// DetailMessage is the raw failure text. For collaborator failures it is the
// collaborator's own message, unprefixed.
func DetailMessage(err error) string {
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		return synthErr.Cause.Error()
	}
	if errors.Is(err, ErrMissingInput) {
		return MissingInputMessage
	}
	return err.Error()
}
