package inference

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/common"
)

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name     string
		shape    []int64
		expected []int64
		wantErr  bool
	}{
		{name: "exact", shape: []int64{1, 3, 640, 640}, expected: []int64{1, 3, 640, 640}},
		{name: "dynamic spatial", shape: []int64{1, 3, 320, 320}, expected: []int64{1, 3, -1, -1}},
		{name: "dynamic batch", shape: []int64{1, 3, 640, 640}, expected: []int64{-1, 3, 640, 640}},
		{name: "wrong size", shape: []int64{1, 3, 320, 320}, expected: []int64{1, 3, 640, 640}, wantErr: true},
		{name: "wrong rank", shape: []int64{3, 640, 640}, expected: []int64{1, 3, 640, 640}, wantErr: true},
		{name: "wrong channels", shape: []int64{1, 1, 640, 640}, expected: []int64{1, 3, -1, -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckShape(tt.shape, tt.expected)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrShapeMismatch))
			assert.Contains(t, err.Error(), "does not match")
		})
	}
}

func TestProfiledSession(t *testing.T) {
	stub := newStubSession(4)
	ps := NewProfiledSession(stub)

	assert.Equal(t, Metrics{}, ps.Metrics())

	_, err := ps.Run(zeroInput(4))
	require.NoError(t, err)
	_, err = ps.Run(zeroInput(8))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrShapeMismatch), "wrapped errors pass through unchanged")

	m := ps.Metrics()
	assert.Equal(t, int64(2), m.InferenceCount)
	assert.Equal(t, int64(1), m.FailureCount)
	assert.GreaterOrEqual(t, m.TotalTimeMs, 0.0)
	assert.InDelta(t, m.TotalTimeMs/2, m.AverageTimeMs, 1e-9)

	assert.Equal(t, []int64{1, 3, 4, 4}, ps.InputShape())

	ps.ResetMetrics()
	assert.Equal(t, Metrics{}, ps.Metrics())

	require.NoError(t, ps.Close())
	assert.Equal(t, int32(1), stub.closed)
}
