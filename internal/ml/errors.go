package ml

import (
	"context"
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned by every prediction when the artifact could
// not be loaded at startup.
var ErrModelUnavailable = errors.New("model unavailable")

// Errors backends wrap so the predictor can classify failures.
var (
	ErrShapeMismatch = errors.New("feature shape mismatch")
	ErrInvalidOutput = errors.New("invalid model output")
)

// FailureKind classifies an inference failure.
type FailureKind string

const (
	KindShape   FailureKind = "shape"
	KindModel   FailureKind = "model"
	KindOutput  FailureKind = "output"
	KindTimeout FailureKind = "timeout"
	KindPanic   FailureKind = "panic"
)

// InferenceError wraps any failure raised while computing a prediction. It is
// tied to a single request and does not affect later attempts.
type InferenceError struct {
	Kind FailureKind
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed (%s): %v", e.Kind, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// newInferenceError picks the kind from the wrapped error chain.
func newInferenceError(err error) *InferenceError {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie
	}

	kind := KindModel
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, ErrShapeMismatch):
		kind = KindShape
	case errors.Is(err, ErrInvalidOutput):
		kind = KindOutput
	}
	return &InferenceError{Kind: kind, Err: err}
}

// IsInferenceFailure reports whether err is a per-request inference failure.
func IsInferenceFailure(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}
