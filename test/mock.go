// Package test - Deterministic test doubles for the detection pipeline: a
// model session that needs no runtime library and synthetic images.
package test

import (
	"image"
	"image/color"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
)

// MockBox is a detection the MockSession should emit, given in original-image
// pixels.
type MockBox struct {
	Rect    images.Rect
	ClassID int
	Score   float32
}

// MockSession is an inference.Session that returns a fixed output. It checks
// the input shape exactly like a real session does, counts its calls and is
// safe for concurrent use.
//
// @example
// session := NewMockSession(640, inference.NewRawOutputFromRows(6, rows))
// out, err := session.Run(tensor)
type MockSession struct {
	// Shape is the expected input shape.
	Shape []int64
	// Output is returned by every Run unless Respond is set.
	Output *inference.RawOutput
	// Respond, when set, computes the output from the input.
	Respond func(input *inference.InputTensor) (*inference.RawOutput, error)
	// Err, when set, makes every Run fail with ErrInferenceFailed.
	Err error

	mu     sync.Mutex
	calls  int
	last   *inference.InputTensor
	closed bool
}

// NewMockSession creates a session for a (1, 3, size, size) input.
//
// Arguments:
//   - size: The square input edge.
//   - output: The output returned by Run.
//
// Returns:
//   - *MockSession: The session.
func NewMockSession(size int, output *inference.RawOutput) *MockSession {
	return &MockSession{
		Shape:  []int64{1, 3, int64(size), int64(size)},
		Output: output,
	}
}

// Run implements inference.Session.
func (m *MockSession) Run(input *inference.InputTensor) (*inference.RawOutput, error) {
	m.mu.Lock()
	m.calls++
	m.last = input
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return nil, common.Errorf(common.ErrInferenceFailed, "session is closed")
	}
	if err := inference.CheckShape(input.Shape(), m.Shape); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, errors.Wrap(common.ErrInferenceFailed, m.Err.Error())
	}
	if m.Respond != nil {
		return m.Respond(input)
	}
	return m.Output, nil
}

// InputShape implements inference.Session.
func (m *MockSession) InputShape() []int64 {
	return append([]int64(nil), m.Shape...)
}

// Close implements inference.Session.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Run was called.
func (m *MockSession) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastInput returns the tensor passed to the latest Run.
func (m *MockSession) LastInput() *inference.InputTensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Closed reports whether Close was called.
func (m *MockSession) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// OutputFor builds the anchors-last output a model would emit for boxes on
// an image letterboxed with t. Each box becomes one row whose only non-zero
// score is at its class.
//
// Arguments:
//   - t: The letterbox transform of the image.
//   - numClasses: The size of the class table.
//   - boxes: The detections in original-image pixels.
//
// Returns:
//   - *inference.RawOutput: A (1, 4+numClasses, len(boxes)) output.
func OutputFor(t images.LetterboxTransform, numClasses int, boxes ...MockBox) *inference.RawOutput {
	rows := make([][]float32, len(boxes))
	for i, b := range boxes {
		r := t.Forward(b.Rect)
		cx, cy := r.Center()

		row := make([]float32, 4+numClasses)
		row[0], row[1], row[2], row[3] = cx, cy, r.Width(), r.Height()
		row[4+b.ClassID] = b.Score
		rows[i] = row
	}
	return inference.NewRawOutputFromRows(4+numClasses, rows)
}

// SolidImage returns a width x height image filled with c.
func SolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	r, g, b, a := c.RGBA()
	px := [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:i+4], px[:])
	}
	return img
}

// GradientImage returns a width x height image whose red channel grows left to
// right and whose green channel grows top to bottom.
func GradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: 64,
				A: 255,
			})
		}
	}
	return img
}
