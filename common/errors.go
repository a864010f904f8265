// Package common - Error taxonomy and shared box types for the detection pipeline.
package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for every failure the pipeline can surface. Callers test
// them with errors.Is; the concrete error carries the stage and the reason.
var (
	// ErrInvalidImage is returned for nil or zero-sized images.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidConfig is returned for bad thresholds or a non-positive target size.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrShapeMismatch is returned when the input tensor does not fit the model.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInferenceFailed wraps any error reported by the inference backend.
	ErrInferenceFailed = errors.New("inference failed")
	// ErrMalformedOutput is returned when the raw output does not match the class table.
	ErrMalformedOutput = errors.New("malformed output")
)

// Stage identifies the pipeline step that produced an error.
type Stage string

const (
	// StageDetect is parameter validation in the orchestrator.
	StageDetect Stage = "detect"
	// StagePreprocess is letterboxing and tensor conversion.
	StagePreprocess Stage = "preprocess"
	// StageInference is the forward pass.
	StageInference Stage = "inference"
	// StagePostprocess is decoding, NMS and the inverse transform.
	StagePostprocess Stage = "postprocess"
)

// StageError attaches the failing stage to an error.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Cause implements the pkg/errors causer interface.
func (e *StageError) Cause() error {
	return e.Err
}

// AtStage wraps err with the given stage. A nil err yields nil, and an error
// already carrying a stage is returned unchanged.
//
// Arguments:
//   - stage: The pipeline stage that failed.
//   - err: The error to wrap.
//
// Returns:
//   - error: The staged error.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var staged *StageError
	if errors.As(err, &staged) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// Errorf builds an error of the given kind with a formatted reason, e.g.
// Errorf(ErrInvalidImage, "width is %d", 0).
func Errorf(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}

// Kind returns the short taxonomy name of err, or "internal" when err does not
// belong to the taxonomy.
//
// Arguments:
//   - err: The error to classify.
//
// Returns:
//   - string: One of invalid_image, invalid_config, shape_mismatch,
//     inference_failed, malformed_output or internal.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, ErrInferenceFailed):
		return "inference_failed"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	default:
		return "internal"
	}
}
