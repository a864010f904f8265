package postprocess

import (
	"image"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
)

// Options holds the thresholds and class count used by Process.
type Options struct {
	// ConfThreshold is the inclusive minimum score, in [0, 1].
	ConfThreshold float32 `json:"confidence" yaml:"confidence"`
	// IoUThreshold is the overlap at which same-class boxes are suppressed, in [0, 1].
	IoUThreshold float32 `json:"overlap" yaml:"overlap"`
	// NumClasses is the size of the class table.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
}

// Validate rejects thresholds outside [0, 1], NaN thresholds and an empty
// class table. Values are never clamped.
func (o Options) Validate() error {
	if !inUnitRange(o.ConfThreshold) {
		return common.Errorf(common.ErrInvalidConfig, "confidence threshold %v is outside [0, 1]", o.ConfThreshold)
	}
	if !inUnitRange(o.IoUThreshold) {
		return common.Errorf(common.ErrInvalidConfig, "IoU threshold %v is outside [0, 1]", o.IoUThreshold)
	}
	if o.NumClasses <= 0 {
		return common.Errorf(common.ErrInvalidConfig, "number of classes must be positive, got %d", o.NumClasses)
	}
	return nil
}

func inUnitRange(v float32) bool {
	return !math32.IsNaN(v) && v >= 0 && v <= 1
}

// Process decodes raw into final detections:
//
//  1. Decode each row into (class id, score) and keep rows with score >= conf.
//  2. Convert boxes to corner form and clamp them to the image area of the
//     model input, so that overlaps are measured on the visible part.
//  3. Suppress same-class overlaps with ApplyNMS.
//  4. Map boxes back through the letterbox transform and clamp them to orig.
//  5. Re-encode boxes in centre form.
//
// Arguments:
//   - raw: The model output.
//   - opts: The thresholds and class count.
//   - t: The transform recorded by preprocessing.
//   - orig: The original image size.
//
// Returns:
//   - []Detection: Ordered by descending score, then class id, then row
//     index; empty, never nil, when nothing survives.
//   - error: ErrInvalidConfig or ErrMalformedOutput.
func Process(raw *inference.RawOutput, opts Options, t images.LetterboxTransform, orig image.Point) ([]Detection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !(t.Scale > 0) || orig.X <= 0 || orig.Y <= 0 {
		return nil, common.Errorf(common.ErrInvalidConfig, "invalid transform scale %v for image %v", t.Scale, orig)
	}

	candidates, err := Decode(raw, opts.NumClasses, opts.ConfThreshold)
	if err != nil {
		return nil, err
	}
	// The transform is a uniform scale plus a shift, so IoU measured on the
	// clamped boxes is the IoU of the detections returned.
	content := t.Content()
	for i := range candidates {
		candidates[i].Box = candidates[i].Box.ClampTo(content)
	}
	kept := ApplyNMS(candidates, opts.IoUThreshold)

	w, h := float32(orig.X), float32(orig.Y)
	detections := make([]Detection, 0, len(kept))
	for _, c := range kept {
		r := t.Inverse(c.Box).Clamp(w, h)
		detections = append(detections, Detection{
			ClassID: c.ClassID,
			Score:   c.Score,
			Box:     common.NewBoundingBox(r.X1, r.Y1, r.X2, r.Y2),
		})
	}
	return detections, nil
}
