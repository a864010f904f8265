package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
)

// boxParams is the number of leading box values in every output row.
const boxParams = 4

// ArgMax returns the index and value of the highest score. Ties go to the
// lowest index and NaN scores never win. If every score is NaN, or scores is
// empty, the result is (0, -Inf), which no confidence threshold accepts.
//
// Arguments:
//   - scores: The per-class scores of one row.
//
// Returns:
//   - classID: The winning class.
//   - score: Its score.
//
// @example
// id, score := ArgMax([]float32{0.2, 0.7, 0.7}) // 1, 0.7
func ArgMax(scores []float32) (classID int, score float32) {
	score = math32.Inf(-1)
	for k, s := range scores {
		if s > score {
			classID, score = k, s
		}
	}
	return classID, score
}

// Decode turns every raw output row whose best score reaches conf into a
// Candidate with a corner-form box in model-input pixels.
//
// Arguments:
//   - raw: The model output.
//   - numClasses: The size of the class table; rows must be 4+numClasses wide.
//   - conf: The inclusive confidence threshold.
//
// Returns:
//   - []Candidate: The surviving rows in output order; never nil.
//   - error: An ErrMalformedOutput error if the output does not fit the class table.
func Decode(raw *inference.RawOutput, numClasses int, conf float32) ([]Candidate, error) {
	rows, width, err := raw.Dims()
	if err != nil {
		return nil, err
	}
	if numClasses <= 0 {
		return nil, common.Errorf(common.ErrInvalidConfig, "class table is empty")
	}
	if width != boxParams+numClasses {
		return nil, common.Errorf(common.ErrMalformedOutput,
			"output rows hold %d values, expected %d (4 box + %d classes)", width, boxParams+numClasses, numClasses)
	}

	candidates := make([]Candidate, 0)
	scores := make([]float32, numClasses)
	for n := 0; n < rows; n++ {
		for k := range scores {
			scores[k] = raw.Value(n, boxParams+k, rows, width)
		}
		classID, score := ArgMax(scores)
		if !(score >= conf) {
			continue
		}

		cx := raw.Value(n, 0, rows, width)
		cy := raw.Value(n, 1, rows, width)
		w := raw.Value(n, 2, rows, width)
		h := raw.Value(n, 3, rows, width)
		if !finite(cx, cy, w, h) {
			continue
		}

		candidates = append(candidates, Candidate{
			Box:     images.RectFromCenter(cx, cy, w, h),
			ClassID: classID,
			Score:   score,
			Index:   n,
		})
	}
	return candidates, nil
}

func finite(vs ...float32) bool {
	for _, v := range vs {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
