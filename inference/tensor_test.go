package inference

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/common"
)

func TestNewInputTensor(t *testing.T) {
	data := make([]float32, 3*4*4)
	data[1*16+2*4+3] = 0.5 // c=1, y=2, x=3

	in, err := NewInputTensor(4, data)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 4}, in.Shape())
	assert.Len(t, in.Data(), 48)

	v, err := in.At(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), v)
}

func TestNewInputTensorErrors(t *testing.T) {
	_, err := NewInputTensor(0, nil)
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))

	_, err = NewInputTensor(4, make([]float32, 10))
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutAnchorsLast, l)

	l, err = ParseLayout("Anchors_First")
	require.NoError(t, err)
	assert.Equal(t, LayoutAnchorsFirst, l)

	_, err = ParseLayout("nhwc")
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
}

func TestRawOutputDims(t *testing.T) {
	tests := []struct {
		name      string
		shape     []int64
		dataLen   int
		layout    Layout
		wantRows  int
		wantWidth int
		wantErr   bool
	}{
		{name: "anchors last", shape: []int64{1, 22, 8400}, dataLen: 22 * 8400, layout: LayoutAnchorsLast, wantRows: 8400, wantWidth: 22},
		{name: "anchors first 3D", shape: []int64{1, 8400, 22}, dataLen: 22 * 8400, layout: LayoutAnchorsFirst, wantRows: 8400, wantWidth: 22},
		{name: "anchors first 2D", shape: []int64{5, 6}, dataLen: 30, layout: LayoutAnchorsFirst, wantRows: 5, wantWidth: 6},
		{name: "zero rows", shape: []int64{1, 6, 0}, dataLen: 0, layout: LayoutAnchorsLast, wantRows: 0, wantWidth: 6},
		{name: "batch of two", shape: []int64{2, 6, 5}, dataLen: 60, layout: LayoutAnchorsLast, wantErr: true},
		{name: "2D anchors last", shape: []int64{6, 5}, dataLen: 30, layout: LayoutAnchorsLast, wantErr: true},
		{name: "rank 4", shape: []int64{1, 1, 6, 5}, dataLen: 30, layout: LayoutAnchorsLast, wantErr: true},
		{name: "short data", shape: []int64{1, 6, 5}, dataLen: 29, layout: LayoutAnchorsLast, wantErr: true},
		{name: "dynamic dimension", shape: []int64{1, -1, 5}, dataLen: 0, layout: LayoutAnchorsLast, wantErr: true},
		{name: "unknown layout", shape: []int64{1, 6, 5}, dataLen: 30, layout: "nchw", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &RawOutput{Shape: tt.shape, Data: make([]float32, tt.dataLen), Layout: tt.layout}
			rows, width, err := out.Dims()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrMalformedOutput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, rows)
			assert.Equal(t, tt.wantWidth, width)
		})
	}
}

func TestRawOutputFromRowsValue(t *testing.T) {
	rows := [][]float32{
		{10, 20, 30, 40, 0.9, 0.1},
		{50, 60, 70, 80, 0.2, 0.7},
		{1, 2, 3},
	}
	out := NewRawOutputFromRows(6, rows)
	assert.Equal(t, []int64{1, 6, 3}, out.Shape)

	n, width, err := out.Dims()
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 6, width)

	assert.Equal(t, float32(60), out.Value(1, 1, n, width))
	assert.Equal(t, float32(0.9), out.Value(0, 4, n, width))
	assert.Equal(t, float32(0), out.Value(2, 5, n, width), "short rows are zero-filled")

	// The same candidates transposed into the anchors-first layout.
	first := make([]float32, 0, 18)
	for i := 0; i < n; i++ {
		for k := 0; k < width; k++ {
			first = append(first, out.Value(i, k, n, width))
		}
	}
	transposed, err := NewRawOutput([]int64{1, 3, 6}, first, LayoutAnchorsFirst)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		for k := 0; k < width; k++ {
			assert.Equal(t, out.Value(i, k, n, width), transposed.Value(i, k, n, width))
		}
	}
}

func TestNewRawOutputRejectsBadShape(t *testing.T) {
	_, err := NewRawOutput([]int64{1, 6, 2}, make([]float32, 5), LayoutAnchorsLast)
	assert.True(t, errors.Is(err, common.ErrMalformedOutput))

	var nilOut *RawOutput
	_, _, err = nilOut.Dims()
	assert.True(t, errors.Is(err, common.ErrMalformedOutput))
}
