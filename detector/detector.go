// Package detector - Single-image object detection: letterbox, forward pass and
// postprocessing composed behind one call.
package detector

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/preprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Profiler operation names recorded by Detect.
const (
	OpPreprocess  = "preprocess"
	OpInference   = "inference"
	OpPostprocess = "postprocess"
	OpDetect      = "detect"
)

// Detection is one detection in original-image pixels.
type Detection = postprocess.Detection

// Options are the per-call detection parameters.
type Options struct {
	// TargetSize is the square model input edge.
	TargetSize int `json:"size" yaml:"target_size"`
	// ConfThreshold is the inclusive minimum score.
	ConfThreshold float32 `json:"confidence" yaml:"confidence"`
	// IoUThreshold is the overlap at which same-class boxes are suppressed.
	IoUThreshold float32 `json:"overlap" yaml:"overlap"`
}

// DefaultOptions returns a 640 input, 0.3 confidence and 0.5 overlap.
func DefaultOptions() Options {
	return Options{
		TargetSize:    preprocess.DefaultTargetSize,
		ConfThreshold: 0.3,
		IoUThreshold:  0.5,
	}
}

// Validate rejects a non-positive target size and thresholds that are NaN or
// outside [0, 1]. Nothing is clamped.
func (o Options) Validate() error {
	if o.TargetSize <= 0 {
		return common.Errorf(common.ErrInvalidConfig, "target size must be positive, got %d", o.TargetSize)
	}
	if math32.IsNaN(o.ConfThreshold) || o.ConfThreshold < 0 || o.ConfThreshold > 1 {
		return common.Errorf(common.ErrInvalidConfig, "confidence %v is outside [0, 1]", o.ConfThreshold)
	}
	if math32.IsNaN(o.IoUThreshold) || o.IoUThreshold < 0 || o.IoUThreshold > 1 {
		return common.Errorf(common.ErrInvalidConfig, "overlap %v is outside [0, 1]", o.IoUThreshold)
	}
	return nil
}

// DetectionResult is the outcome of one Detect call.
type DetectionResult struct {
	// Width of the original image.
	Width int `json:"width"`
	// Height of the original image.
	Height int `json:"height"`
	// Predictions ordered by descending score, then class id, then output row.
	Predictions []Detection `json:"predictions"`
}

// Prediction is a Detection with its class label, flattened for responses.
type Prediction struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Width      float32 `json:"width"`
	Height     float32 `json:"height"`
	Confidence float32 `json:"confidence"`
	Class      string  `json:"class"`
	ClassID    int     `json:"class_id"`
}

// Config holds the collaborators of a Detector.
type Config struct {
	// Session runs the model; the Detector takes ownership and closes it.
	Session inference.Session
	// Classes is the label table; its length is the model's class count.
	Classes *models.ClassTable
	// Preprocess sets the pad colour and resampling kernel.
	Preprocess preprocess.Options
	// Profiler, when set, records the time of every stage.
	Profiler *profiler.Profiler
	// Logger receives stage timings at debug level; nil selects the standard logger.
	Logger logrus.FieldLogger
}

// Detector turns images into detections with a pre-loaded session. It holds no
// per-call state and is safe for concurrent use when its Session is.
type Detector struct {
	session      inference.Session
	classes      *models.ClassTable
	preprocessor *preprocess.Preprocessor
	profiler     *profiler.Profiler
	logger       logrus.FieldLogger
}

// New creates a detector.
//
// Arguments:
//   - cfg: The session, class table and optional preprocessing, profiler and logger.
//
// Returns:
//   - *Detector: The detector.
//   - error: An ErrInvalidConfig error if the session or class table is missing.
//
// @example
// d, err := detector.New(detector.Config{Session: session, Classes: table})
// result, err := d.Detect(img, detector.DefaultOptions())
func New(cfg Config) (*Detector, error) {
	if cfg.Session == nil {
		return nil, common.Errorf(common.ErrInvalidConfig, "detector needs a session")
	}
	if cfg.Classes == nil || cfg.Classes.Len() == 0 {
		return nil, common.Errorf(common.ErrInvalidConfig, "detector needs a non-empty class table")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Detector{
		session:      cfg.Session,
		classes:      cfg.Classes,
		preprocessor: preprocess.NewPreprocessor(cfg.Preprocess),
		profiler:     cfg.Profiler,
		logger:       logger,
	}, nil
}

// Detect runs the full pipeline on img.
//
// Order of operations:
//  1. Validate opts and check TargetSize against the session input shape.
//  2. Letterbox img into a TargetSize square tensor.
//  3. Run the session.
//  4. Decode, filter, suppress and map the boxes back onto img.
//
// Arguments:
//   - img: The image; it is not modified.
//   - opts: The target size and thresholds.
//
// Returns:
//   - *DetectionResult: The original size and the detections.
//   - error: A *common.StageError wrapping ErrInvalidImage, ErrInvalidConfig,
//     ErrShapeMismatch, ErrInferenceFailed or ErrMalformedOutput.
func (d *Detector) Detect(img image.Image, opts Options) (*DetectionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, common.AtStage(common.StageDetect, err)
	}
	// Rejected before the canvas is allocated.
	size := int64(opts.TargetSize)
	if err := inference.CheckShape([]int64{1, 3, size, size}, d.session.InputShape()); err != nil {
		return nil, common.AtStage(common.StageInference, err)
	}
	stopDetect := d.profiler.StartOperation(OpDetect)

	stop := d.profiler.StartOperation(OpPreprocess)
	prepared, err := d.preprocessor.Prepare(img, opts.TargetSize)
	preprocessTime := stop()
	if err != nil {
		return nil, common.AtStage(common.StagePreprocess, err)
	}

	stop = d.profiler.StartOperation(OpInference)
	raw, err := d.session.Run(prepared.Tensor)
	inferenceTime := stop()
	if err != nil {
		return nil, common.AtStage(common.StageInference, err)
	}

	stop = d.profiler.StartOperation(OpPostprocess)
	detections, err := postprocess.Process(raw, postprocess.Options{
		ConfThreshold: opts.ConfThreshold,
		IoUThreshold:  opts.IoUThreshold,
		NumClasses:    d.classes.Len(),
	}, prepared.Transform, prepared.Original)
	postprocessTime := stop()
	if err != nil {
		return nil, common.AtStage(common.StagePostprocess, err)
	}
	total := stopDetect()

	d.logger.WithFields(logrus.Fields{
		"width":       prepared.Original.X,
		"height":      prepared.Original.Y,
		"size":        opts.TargetSize,
		"confidence":  opts.ConfThreshold,
		"overlap":     opts.IoUThreshold,
		"detections":  len(detections),
		"preprocess":  preprocessTime,
		"inference":   inferenceTime,
		"postprocess": postprocessTime,
		"total":       total,
	}).Debug("detection complete")

	return &DetectionResult{
		Width:       prepared.Original.X,
		Height:      prepared.Original.Y,
		Predictions: detections,
	}, nil
}

// Labels attaches class names to the predictions of result. Class ids outside
// the table, which Detect never produces, are labelled "unknown".
func (d *Detector) Labels(result *DetectionResult) []Prediction {
	if result == nil {
		return []Prediction{}
	}

	out := make([]Prediction, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		name, ok := d.classes.Name(p.ClassID)
		if !ok {
			name = "unknown"
		}
		out = append(out, Prediction{
			X:          p.Box.X,
			Y:          p.Box.Y,
			Width:      p.Box.Width,
			Height:     p.Box.Height,
			Confidence: p.Score,
			Class:      name,
			ClassID:    p.ClassID,
		})
	}
	return out
}

// Classes returns the class table.
func (d *Detector) Classes() *models.ClassTable {
	return d.classes
}

// Session returns the session the detector runs.
func (d *Detector) Session() inference.Session {
	return d.session
}

// Close releases the session.
func (d *Detector) Close() error {
	return d.session.Close()
}
