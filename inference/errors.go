package inference

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrModelNotLoaded is matched by every error returned while no model is available.
var ErrModelNotLoaded = errors.New("model not loaded")

// ModelLoadError reports a model that could not be loaded. It is cached by the
// Service and returned from every later Predict.
type ModelLoadError struct {
	Path    string
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *ModelLoadError) Error() string {
	switch {
	case e.Backend != "" && e.Path != "":
		return fmt.Sprintf("failed to load %s model from %s: %v", e.Backend, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("failed to load model from %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("failed to load model: %v", e.Err)
	}
}

// Unwrap returns the underlying load failure.
func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// Is makes every ModelLoadError match ErrModelNotLoaded.
func (e *ModelLoadError) Is(target error) bool {
	return target == ErrModelNotLoaded
}

// InferenceError is the catch-all for failures after decoding, including
// recovered panics in preprocessing or the forward pass.
type InferenceError struct {
	RequestID string
	// Stage is "preprocess", "forward" or "postprocess".
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed during %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying failure.
func (e *InferenceError) Unwrap() error {
	return e.Err
}
