// Package providers - Execution provider selection and ONNX Runtime session options.
package providers

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend names an ONNX Runtime execution provider.
type Backend string

const (
	// CPUBackend runs on the default CPU execution provider.
	CPUBackend Backend = "cpu"
	// CUDABackend uses NVIDIA CUDA for GPU acceleration.
	CUDABackend Backend = "cuda"
	// CoreMLBackend uses Apple CoreML for macOS acceleration.
	CoreMLBackend Backend = "coreml"
	// OpenVINOBackend uses Intel OpenVINO.
	OpenVINOBackend Backend = "openvino"
)

// Backends lists every supported backend.
var Backends = []Backend{CPUBackend, CUDABackend, CoreMLBackend, OpenVINOBackend}

// ParseBackend maps a case-insensitive name to a Backend. An empty name
// selects the CPU backend.
//
// Arguments:
//   - name: The backend name from configuration.
//
// Returns:
//   - Backend: The parsed backend.
//   - error: An error if the name is unknown.
func ParseBackend(name string) (Backend, error) {
	if name == "" {
		return CPUBackend, nil
	}
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown execution provider backend: %q", name)
}

// GraphOptimization names an ONNX Runtime graph optimization level.
type GraphOptimization string

const (
	// OptimizationDisabled turns graph rewrites off, which eases debugging.
	OptimizationDisabled GraphOptimization = "disabled"
	// OptimizationBasic applies semantics-preserving rewrites only.
	OptimizationBasic GraphOptimization = "basic"
	// OptimizationExtended adds node fusions. This is the default.
	OptimizationExtended GraphOptimization = "extended"
	// OptimizationAll adds layout optimizations.
	OptimizationAll GraphOptimization = "all"
)

func (g GraphOptimization) level() (ort.GraphOptimizationLevel, error) {
	switch g {
	case OptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll, nil
	case OptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "", OptimizationExtended:
		return ort.GraphOptimizationLevelEnableExtended, nil
	case OptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, fmt.Errorf("unknown graph optimization level: %q", g)
	}
}

// Options selects and tunes the execution provider used by a session.
type Options struct {
	// Backend is the execution provider.
	Backend Backend `json:"backend" yaml:"backend"`
	// LibraryPath overrides the location of the onnxruntime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// IntraOpThreads bounds parallelism inside a node; 0 lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads bounds parallelism across independent nodes; 0 lets the runtime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// Optimization is the graph optimization level.
	Optimization GraphOptimization `json:"optimization" yaml:"optimization"`

	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultOptions returns CPU execution with runtime-chosen thread counts.
func DefaultOptions() Options {
	return Options{
		Backend:      CPUBackend,
		Optimization: OptimizationExtended,
	}
}

// Validate checks the backend name, thread counts and optimization level.
func (o Options) Validate() error {
	if _, err := ParseBackend(string(o.Backend)); err != nil {
		return err
	}
	if o.IntraOpThreads < 0 || o.InterOpThreads < 0 {
		return fmt.Errorf("thread counts must not be negative: intra=%d inter=%d",
			o.IntraOpThreads, o.InterOpThreads)
	}
	if _, err := o.Optimization.level(); err != nil {
		return err
	}
	return nil
}

// NewSessionOptions builds native session options for o. The caller owns the
// result and must Destroy it once the session has been created.
//
// Arguments:
//   - o: The provider options.
//
// Returns:
//   - *ort.SessionOptions: The configured options.
//   - error: An error if the options are invalid or the provider cannot be enabled.
//
// @example
// opts, err := providers.NewSessionOptions(providers.DefaultOptions())
//
//	if err != nil {
//	    return err
//	}
//
// defer opts.Destroy()
func NewSessionOptions(o Options) (*ort.SessionOptions, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	level, _ := o.Optimization.level()

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := configure(options, o, level); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func configure(options *ort.SessionOptions, o Options, level ort.GraphOptimizationLevel) error {
	if err := options.SetIntraOpNumThreads(o.IntraOpThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(o.InterOpThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	backend, _ := ParseBackend(string(o.Backend))
	switch backend {
	case CoreMLBackend:
		if err := options.AppendExecutionProviderCoreML(o.CoreML.Flags()); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOBackend:
		if err := options.AppendExecutionProviderOpenVINO(o.OpenVINO.ProviderOptions()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case CUDABackend:
		cuda, err := o.CUDA.NativeOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	}
	return nil
}
