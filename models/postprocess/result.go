// Package postprocess - Decoding, non-maximum suppression and coordinate
// correction of raw detector output.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/images"
)

// Detection is one final detection in original-image pixels.
type Detection struct {
	// The predicted class index. Every index, including 0, is a real class.
	ClassID int `json:"class_id" yaml:"class_id"`
	// The confidence score of the detection.
	Score float32 `json:"confidence" yaml:"confidence"`
	// The centre-form bounding box.
	Box common.BoundingBox `json:"box" yaml:"box"`
}

func (d Detection) String() string {
	return fmt.Sprintf("class %d (%.3f) %s", d.ClassID, d.Score, d.Box)
}

// Candidate is a decoded output row that passed the confidence filter.
type Candidate struct {
	// The corner-form box in model-input pixels.
	Box images.Rect
	// The arg-max class of the row.
	ClassID int
	// The score of ClassID.
	Score float32
	// The position of the row in the raw output.
	Index int
}

// less orders candidates by descending score, then ascending class id, then
// ascending row index.
func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.ClassID != b.ClassID {
		return a.ClassID < b.ClassID
	}
	return a.Index < b.Index
}
