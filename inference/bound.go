package inference

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/inference/providers"
)

// BoundSession runs a model whose input and output tensors are allocated once
// and bound to the native session. Runs are serialized; the lock covers only
// copy-in, the forward pass and copy-out. Use a Pool of BoundSessions for
// parallelism.
type BoundSession struct {
	mu          sync.Mutex
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	inputShape  []int64
	outputShape []int64
	layout      Layout
}

// NewBoundSession loads the model described by cfg and preallocates its
// tensors. Both the input and output shapes must be fully static.
//
// Arguments:
//   - cfg: The model and provider configuration.
//
// Returns:
//   - *BoundSession: The session; Close releases it and its tensors.
//   - error: An error if the model cannot be loaded or has dynamic shapes.
func NewBoundSession(cfg SessionConfig) (*BoundSession, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	layout, _ := ParseLayout(string(cfg.Layout))

	if err := providers.InitializeEnvironment(cfg.Provider.LibraryPath); err != nil {
		return nil, err
	}

	inputShape, outputShape, err := ModelShapes(cfg.ModelPath, cfg.InputName, cfg.OutputName)
	if err != nil {
		return nil, err
	}
	if !isStatic(inputShape) || !isStatic(outputShape) {
		return nil, common.Errorf(common.ErrInvalidConfig,
			"bound sessions need static shapes, model has input %v output %v", inputShape, outputShape)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := providers.NewSessionOptions(cfg.Provider)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	cfg.logger().WithFields(logrus.Fields{
		"model":        cfg.ModelPath,
		"input_shape":  inputShape,
		"output_shape": outputShape,
		"backend":      cfg.Provider.Backend,
	}).Info("loaded bound model session")

	return &BoundSession{
		session:     session,
		input:       input,
		output:      output,
		inputShape:  inputShape,
		outputShape: outputShape,
		layout:      layout,
	}, nil
}

// Run implements Session.
func (s *BoundSession) Run(input *InputTensor) (*RawOutput, error) {
	if err := CheckShape(input.Shape(), s.inputShape); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil, common.Errorf(common.ErrInferenceFailed, "session is closed")
	}
	copy(s.input.GetData(), input.Data())
	err := s.session.Run()
	var data []float32
	if err == nil {
		data = append([]float32(nil), s.output.GetData()...)
	}
	s.mu.Unlock()

	if err != nil {
		return nil, errors.Wrap(common.ErrInferenceFailed, err.Error())
	}
	return NewRawOutput(s.outputShape, data, s.layout)
}

// InputShape implements Session.
func (s *BoundSession) InputShape() []int64 {
	return append([]int64(nil), s.inputShape...)
}

// Close implements Session.
func (s *BoundSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return err
}

func isStatic(shape []int64) bool {
	for _, d := range shape {
		if d < 0 {
			return false
		}
	}
	return len(shape) > 0
}
