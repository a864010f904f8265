package inference

import (
	"fmt"
	"strings"

	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/common"
)

// Layout describes how candidate rows are arranged in a raw model output.
type Layout string

const (
	// LayoutAnchorsLast is (1, 4+C, N): one column per candidate. This is how
	// YOLOv8 exports its detection head.
	LayoutAnchorsLast Layout = "anchors_last"
	// LayoutAnchorsFirst is (1, N, 4+C) or (N, 4+C): one row per candidate.
	LayoutAnchorsFirst Layout = "anchors_first"
)

// ParseLayout maps a configuration string to a Layout. An empty string selects
// LayoutAnchorsLast.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case "", LayoutAnchorsLast:
		return LayoutAnchorsLast, nil
	case LayoutAnchorsFirst:
		return LayoutAnchorsFirst, nil
	default:
		return "", common.Errorf(common.ErrInvalidConfig, "unknown output layout %q", s)
	}
}

// InputTensor is the dense (1, 3, T, T) float32 model input in CHW order.
type InputTensor struct {
	dense *tensor.Dense
}

// NewInputTensor wraps data as a (1, 3, size, size) tensor without copying.
//
// Arguments:
//   - size: The square edge of the tensor.
//   - data: The CHW pixel data; its length must be 3*size*size.
//
// Returns:
//   - *InputTensor: The tensor.
//   - error: An ErrInvalidConfig error if size or the data length is wrong.
func NewInputTensor(size int, data []float32) (*InputTensor, error) {
	if size <= 0 {
		return nil, common.Errorf(common.ErrInvalidConfig, "tensor size must be positive, got %d", size)
	}
	if want := 3 * size * size; len(data) != want {
		return nil, common.Errorf(common.ErrInvalidConfig,
			"tensor data holds %d values, need %d for (1,3,%d,%d)", len(data), want, size, size)
	}
	return &InputTensor{
		dense: tensor.New(tensor.WithShape(1, 3, size, size), tensor.WithBacking(data)),
	}, nil
}

// Shape returns the tensor dimensions in the runtime's int64 form.
func (t *InputTensor) Shape() []int64 {
	s := t.dense.Shape()
	out := make([]int64, len(s))
	for i, d := range s {
		out[i] = int64(d)
	}
	return out
}

// Data returns the backing slice. Callers must not modify it.
func (t *InputTensor) Data() []float32 {
	return t.dense.Data().([]float32)
}

// At returns the value at channel c, row y, column x.
func (t *InputTensor) At(c, y, x int) (float32, error) {
	v, err := t.dense.At(0, c, y, x)
	if err != nil {
		return 0, err
	}
	return v.(float32), nil
}

// RawOutput is the model's dense prediction tensor together with its layout.
// Each candidate holds cx, cy, w, h followed by one score per class, in
// model-input pixels.
type RawOutput struct {
	Shape  []int64
	Data   []float32
	Layout Layout
}

// NewRawOutput validates that shape describes data under layout.
//
// Arguments:
//   - shape: The output dimensions, batch first.
//   - data: The flat output values.
//   - layout: How candidates are arranged.
//
// Returns:
//   - *RawOutput: The output.
//   - error: An ErrMalformedOutput error if the shape is unusable.
func NewRawOutput(shape []int64, data []float32, layout Layout) (*RawOutput, error) {
	out := &RawOutput{Shape: append([]int64(nil), shape...), Data: data, Layout: layout}
	if _, _, err := out.Dims(); err != nil {
		return nil, err
	}
	return out, nil
}

// NewRawOutputFromRows builds an anchors-last output from candidate rows, the
// way a YOLOv8 head would emit them. Rows shorter than width are zero-filled.
//
// Arguments:
//   - width: The values per candidate, 4 + number of classes.
//   - rows: The candidates.
//
// Returns:
//   - *RawOutput: A (1, width, len(rows)) output.
//
// @example
// raw := NewRawOutputFromRows(6, [][]float32{{320, 320, 100, 100, 0.9, 0.1}})
// // raw.Shape == [1 6 1]
func NewRawOutputFromRows(width int, rows [][]float32) *RawOutput {
	n := len(rows)
	data := make([]float32, width*n)
	for i, row := range rows {
		for k := 0; k < width && k < len(row); k++ {
			data[k*n+i] = row[k]
		}
	}
	return &RawOutput{
		Shape:  []int64{1, int64(width), int64(n)},
		Data:   data,
		Layout: LayoutAnchorsLast,
	}
}

// Dims returns the number of candidates and the width of each candidate row.
//
// Returns:
//   - rows: The number of candidates.
//   - width: The values per candidate, 4 + number of classes.
//   - error: An ErrMalformedOutput error if the shape, batch size or data
//     length is inconsistent.
func (o *RawOutput) Dims() (rows, width int, err error) {
	if o == nil {
		return 0, 0, common.Errorf(common.ErrMalformedOutput, "raw output is nil")
	}

	var a, b int64
	switch len(o.Shape) {
	case 3:
		if o.Shape[0] != 1 {
			return 0, 0, common.Errorf(common.ErrMalformedOutput, "batch size must be 1, got %d", o.Shape[0])
		}
		a, b = o.Shape[1], o.Shape[2]
	case 2:
		if o.Layout != LayoutAnchorsFirst {
			return 0, 0, common.Errorf(common.ErrMalformedOutput, "2D output %v requires layout %s", o.Shape, LayoutAnchorsFirst)
		}
		a, b = o.Shape[0], o.Shape[1]
	default:
		return 0, 0, common.Errorf(common.ErrMalformedOutput, "unsupported output rank %d (shape %v)", len(o.Shape), o.Shape)
	}
	if a < 0 || b < 0 {
		return 0, 0, common.Errorf(common.ErrMalformedOutput, "negative dimension in shape %v", o.Shape)
	}

	switch o.Layout {
	case LayoutAnchorsLast:
		width, rows = int(a), int(b)
	case LayoutAnchorsFirst:
		rows, width = int(a), int(b)
	default:
		return 0, 0, common.Errorf(common.ErrMalformedOutput, "unknown layout %q", o.Layout)
	}

	if len(o.Data) != rows*width {
		return 0, 0, common.Errorf(common.ErrMalformedOutput,
			"data holds %d values, shape %v needs %d", len(o.Data), o.Shape, rows*width)
	}
	return rows, width, nil
}

// Value returns element k of candidate n. Bounds are not checked; call Dims
// first.
func (o *RawOutput) Value(n, k, rows, width int) float32 {
	if o.Layout == LayoutAnchorsLast {
		return o.Data[k*rows+n]
	}
	return o.Data[n*width+k]
}

func (o *RawOutput) String() string {
	return fmt.Sprintf("RawOutput(%s %v)", o.Layout, o.Shape)
}
