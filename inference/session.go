// Package inference - Model sessions and their tensors.
package inference

import (
	"sync"
	"time"

	"github.com/nvr-ai/go-detect/common"
)

// Session executes one forward pass of a loaded model. Implementations must be
// safe for concurrent use.
type Session interface {
	// Run feeds input through the model and returns its raw output.
	Run(input *InputTensor) (*RawOutput, error)
	// InputShape returns the model's expected input shape; -1 marks a dynamic
	// dimension.
	InputShape() []int64
	// Close releases the native resources of the session.
	Close() error
}

// CheckShape reports whether shape fits expected on every fixed dimension.
//
// Arguments:
//   - shape: The shape of the tensor about to be run.
//   - expected: The model's input shape; negative entries match anything.
//
// Returns:
//   - error: An ErrShapeMismatch error naming both shapes, or nil.
func CheckShape(shape, expected []int64) error {
	if len(shape) != len(expected) {
		return common.Errorf(common.ErrShapeMismatch, "input shape %v does not match model input %v", shape, expected)
	}
	for i, d := range expected {
		if d >= 0 && shape[i] != d {
			return common.Errorf(common.ErrShapeMismatch, "input shape %v does not match model input %v", shape, expected)
		}
	}
	return nil
}

// Metrics is a snapshot of the counters kept by a ProfiledSession.
type Metrics struct {
	InferenceCount int64   `json:"inference_count"`
	FailureCount   int64   `json:"failure_count"`
	TotalTimeMs    float64 `json:"total_time_ms"`
	AverageTimeMs  float64 `json:"average_time_ms"`
	LastTimeMs     float64 `json:"last_time_ms"`
	ThroughputFPS  float64 `json:"throughput_fps"`
}

// ProfiledSession wraps a Session and records how long each forward pass takes.
type ProfiledSession struct {
	Session

	mu             sync.RWMutex
	inferenceCount int64
	failureCount   int64
	totalTime      float64
	lastTime       float64
}

// NewProfiledSession decorates s with timing counters.
func NewProfiledSession(s Session) *ProfiledSession {
	return &ProfiledSession{Session: s}
}

// Run executes the wrapped session with performance tracking. The lock is only
// taken to update the counters, never around the forward pass itself.
//
// Arguments:
//   - input: The model input.
//
// Returns:
//   - *RawOutput: The output of the wrapped session.
//   - error: The error of the wrapped session, unchanged.
func (ps *ProfiledSession) Run(input *InputTensor) (*RawOutput, error) {
	start := time.Now()
	out, err := ps.Session.Run(input)
	duration := float64(time.Since(start).Nanoseconds()) / 1e6

	ps.mu.Lock()
	ps.inferenceCount++
	ps.totalTime += duration
	ps.lastTime = duration
	if err != nil {
		ps.failureCount++
	}
	ps.mu.Unlock()

	return out, err
}

// Metrics returns the current counters.
func (ps *ProfiledSession) Metrics() Metrics {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	m := Metrics{
		InferenceCount: ps.inferenceCount,
		FailureCount:   ps.failureCount,
		TotalTimeMs:    ps.totalTime,
		LastTimeMs:     ps.lastTime,
	}
	if ps.inferenceCount > 0 {
		m.AverageTimeMs = ps.totalTime / float64(ps.inferenceCount)
		if m.AverageTimeMs > 0 {
			m.ThroughputFPS = 1000.0 / m.AverageTimeMs
		}
	}
	return m
}

// ResetMetrics clears all performance counters.
func (ps *ProfiledSession) ResetMetrics() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.inferenceCount = 0
	ps.failureCount = 0
	ps.totalTime = 0
	ps.lastTime = 0
}
