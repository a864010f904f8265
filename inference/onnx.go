package inference

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/inference/providers"
)

// SessionConfig describes the model a session is created from.
type SessionConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string
	// InputName is the name of the image input node, "images" for YOLOv8.
	InputName string
	// OutputName is the name of the detection output node, "output0" for YOLOv8.
	OutputName string
	// Layout is how candidates are arranged in the output.
	Layout Layout
	// Provider selects the execution provider.
	Provider providers.Options
	// Logger receives session lifecycle messages; nil selects the standard logger.
	Logger logrus.FieldLogger
}

func (c SessionConfig) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

func (c SessionConfig) validate() error {
	if c.ModelPath == "" {
		return common.Errorf(common.ErrInvalidConfig, "model path is required")
	}
	if c.InputName == "" || c.OutputName == "" {
		return common.Errorf(common.ErrInvalidConfig, "input and output names are required")
	}
	if _, err := ParseLayout(string(c.Layout)); err != nil {
		return err
	}
	return nil
}

// ModelShapes reads the declared shapes of the named input and output from the
// model file. The runtime environment must already be initialized.
//
// Arguments:
//   - path: The ONNX model file.
//   - inputName: The input node name.
//   - outputName: The output node name.
//
// Returns:
//   - input: The input shape, -1 for dynamic dimensions.
//   - output: The output shape, -1 for dynamic dimensions.
//   - error: An error if the model cannot be read or a name is missing.
func ModelShapes(path, inputName, outputName string) (input, output []int64, err error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error reading model info from %s", path)
	}

	for _, info := range inputs {
		if info.Name == inputName {
			input = append([]int64(nil), info.Dimensions...)
		}
	}
	for _, info := range outputs {
		if info.Name == outputName {
			output = append([]int64(nil), info.Dimensions...)
		}
	}

	if input == nil {
		return nil, nil, common.Errorf(common.ErrInvalidConfig, "model %s has no input named %q", path, inputName)
	}
	if output == nil {
		return nil, nil, common.Errorf(common.ErrInvalidConfig, "model %s has no output named %q", path, outputName)
	}
	return input, output, nil
}

// ONNXSession runs a model through ONNX Runtime with tensors allocated per
// call. The native session's Run is thread-safe, so no lock is taken.
type ONNXSession struct {
	session    *ort.DynamicAdvancedSession
	inputShape []int64
	layout     Layout
}

// NewONNXSession loads the model described by cfg.
//
// Order of operations:
//  1. Environment setup: loads the shared library once per process.
//  2. Shape discovery: reads the declared input shape from the model.
//  3. Session options: threading, graph optimization and execution provider.
//  4. Session creation: loads the model without binding any tensors.
//
// Arguments:
//   - cfg: The model and provider configuration.
//
// Returns:
//   - *ONNXSession: The session; Close releases it.
//   - error: An error if the model cannot be loaded.
func NewONNXSession(cfg SessionConfig) (*ONNXSession, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	layout, _ := ParseLayout(string(cfg.Layout))

	if err := providers.InitializeEnvironment(cfg.Provider.LibraryPath); err != nil {
		return nil, err
	}

	inputShape, _, err := ModelShapes(cfg.ModelPath, cfg.InputName, cfg.OutputName)
	if err != nil {
		return nil, err
	}

	options, err := providers.NewSessionOptions(cfg.Provider)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	cfg.logger().WithFields(logrus.Fields{
		"model":       cfg.ModelPath,
		"input_shape": inputShape,
		"backend":     cfg.Provider.Backend,
	}).Info("loaded model session")

	return &ONNXSession{
		session:    session,
		inputShape: inputShape,
		layout:     layout,
	}, nil
}

// Run implements Session.
func (s *ONNXSession) Run(input *InputTensor) (*RawOutput, error) {
	if err := CheckShape(input.Shape(), s.inputShape); err != nil {
		return nil, err
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape()...), input.Data())
	if err != nil {
		return nil, errors.Wrap(common.ErrInferenceFailed, err.Error())
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, errors.Wrap(common.ErrInferenceFailed, err.Error())
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, common.Errorf(common.ErrMalformedOutput, "expected a float32 output tensor, got %T", outputs[0])
	}

	// The output buffer is freed by Destroy, so the values are copied out.
	data := append([]float32(nil), out.GetData()...)
	return NewRawOutput(out.GetShape(), data, s.layout)
}

// InputShape implements Session.
func (s *ONNXSession) InputShape() []int64 {
	return append([]int64(nil), s.inputShape...)
}

// Close implements Session.
func (s *ONNXSession) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
