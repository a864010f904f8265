package inference

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/common"
)

// stubSession returns a fixed output and detects overlapping calls.
type stubSession struct {
	shape   []int64
	output  *RawOutput
	err     error
	calls   int64
	busy    int32
	overlap int32
	closed  int32
	onRun   func()
}

func newStubSession(size int64) *stubSession {
	return &stubSession{
		shape:  []int64{1, 3, size, size},
		output: NewRawOutputFromRows(6, nil),
	}
}

func (s *stubSession) Run(input *InputTensor) (*RawOutput, error) {
	if !atomic.CompareAndSwapInt32(&s.busy, 0, 1) {
		atomic.StoreInt32(&s.overlap, 1)
	}
	defer atomic.StoreInt32(&s.busy, 0)

	atomic.AddInt64(&s.calls, 1)
	if s.onRun != nil {
		s.onRun()
	}
	if err := CheckShape(input.Shape(), s.shape); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, errors.Wrap(common.ErrInferenceFailed, s.err.Error())
	}
	return s.output, nil
}

func (s *stubSession) InputShape() []int64 { return s.shape }

func (s *stubSession) Close() error {
	atomic.StoreInt32(&s.closed, 1)
	return nil
}

func zeroInput(size int) *InputTensor {
	t, err := NewInputTensor(size, make([]float32, 3*size*size))
	if err != nil {
		panic(err)
	}
	return t
}
