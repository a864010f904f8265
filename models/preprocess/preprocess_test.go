package preprocess

import (
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/images"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func noiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

// TestPrepareShapeAndRange validates the tensor contract for a spread of sizes.
func TestPrepareShapeAndRange(t *testing.T) {
	cases := []struct {
		w, h, target int
	}{
		{1920, 1080, 640},
		{1080, 1920, 640},
		{640, 640, 640},
		{17, 3, 32},
		{1, 1, 64},
		{300, 200, 320},
	}

	for _, c := range cases {
		prepared, err := Prepare(noiseImage(c.w, c.h, int64(c.w*c.h)), c.target)
		require.NoError(t, err)

		tgt := int64(c.target)
		assert.Equal(t, []int64{1, 3, tgt, tgt}, prepared.Tensor.Shape())

		data := prepared.Tensor.Data()
		require.Len(t, data, 3*c.target*c.target)
		for _, v := range data {
			if v < 0 || v > 1 {
				t.Fatalf("value %v outside [0, 1] for %dx%d -> %d", v, c.w, c.h, c.target)
			}
		}

		assert.Equal(t, image.Pt(c.w, c.h), prepared.Original)
		assert.Equal(t, prepared.Transform.Scaled, prepared.Scaled)
		assert.LessOrEqual(t, prepared.Scaled.X, c.target)
		assert.LessOrEqual(t, prepared.Scaled.Y, c.target)
		assert.True(t, prepared.Scaled.X == c.target || prepared.Scaled.Y == c.target,
			"the longer edge fills the canvas")
	}
}

// TestPrepareChannelLayout checks RGB order, CHW layout and padding value.
func TestPrepareChannelLayout(t *testing.T) {
	src := solidImage(40, 20, color.RGBA{R: 255, G: 128, B: 0, A: 255})

	prepared, err := Prepare(src, 8)
	require.NoError(t, err)
	require.Equal(t, image.Pt(8, 4), prepared.Scaled)
	require.Equal(t, float32(2), prepared.Transform.PadY)

	at := func(c, y, x int) float32 {
		v, err := prepared.Tensor.At(c, y, x)
		require.NoError(t, err)
		return v
	}

	// Inside the image.
	assert.InDelta(t, 1.0, at(0, 3, 4), 0.01)
	assert.InDelta(t, 128.0/255, at(1, 3, 4), 0.01)
	assert.InDelta(t, 0.0, at(2, 3, 4), 0.01)

	// In the padding.
	gray := float64(images.PadColor.R) / 255
	for c := 0; c < 3; c++ {
		assert.InDelta(t, gray, at(c, 0, 0), 1e-6)
		assert.InDelta(t, gray, at(c, 7, 7), 1e-6)
	}
}

func TestPrepareErrors(t *testing.T) {
	_, err := Prepare(nil, 640)
	assert.True(t, errors.Is(err, common.ErrInvalidImage))

	_, err = Prepare(image.NewRGBA(image.Rect(0, 0, 0, 10)), 640)
	assert.True(t, errors.Is(err, common.ErrInvalidImage))

	_, err = Prepare(solidImage(4, 4, color.RGBA{A: 255}), 0)
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))

	_, err = Prepare(solidImage(4, 4, color.RGBA{A: 255}), -640)
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
}

func TestPrepareDoesNotMutateInput(t *testing.T) {
	src := noiseImage(64, 48, 7)
	before := append([]byte(nil), src.Pix...)

	_, err := Prepare(src, 32)
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
}

func TestPrepareDeterministicAndConcurrent(t *testing.T) {
	src := noiseImage(200, 120, 3)
	p := NewPreprocessor(DefaultOptions())

	first, err := p.Prepare(src, 64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, err := p.Prepare(src, 64)
			assert.NoError(t, err)
			assert.Equal(t, first.Tensor.Data(), again.Tensor.Data())
			assert.Equal(t, first.Transform, again.Transform)
		}()
	}
	wg.Wait()
}

func TestCustomPadColor(t *testing.T) {
	p := NewPreprocessor(Options{PadColor: color.Black, Interpolation: resize.NearestNeighbor})
	prepared, err := p.Prepare(solidImage(10, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255}), 10)
	require.NoError(t, err)

	v, err := prepared.Tensor.At(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, float32(0), v)

	v, err = prepared.Tensor.At(0, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, float32(1), v)
}

func TestZeroOptionsSelectDefaults(t *testing.T) {
	assert.Equal(t, DefaultOptions(), NewPreprocessor(Options{}).opts)

	p := NewPreprocessor(Options{Interpolation: resize.Bicubic})
	assert.Equal(t, images.PadColor, p.opts.PadColor)
	assert.Equal(t, resize.Bicubic, p.opts.Interpolation)

	img := solidImage(37, 23, color.RGBA{R: 10, G: 200, B: 90, A: 255})
	a, err := NewPreprocessor(Options{}).Prepare(img, 64)
	require.NoError(t, err)
	b, err := Prepare(img, 64)
	require.NoError(t, err)
	assert.Equal(t, b.Tensor.Data(), a.Tensor.Data())
}

func TestParseInterpolation(t *testing.T) {
	for name, want := range map[string]resize.InterpolationFunction{
		"":         resize.Bilinear,
		"bilinear": resize.Bilinear,
		"Nearest":  resize.NearestNeighbor,
		"bicubic":  resize.Bicubic,
		"lanczos":  resize.Lanczos3,
		"lanczos2": resize.Lanczos2,
		"mitchell": resize.MitchellNetravali,
	} {
		got, err := ParseInterpolation(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseInterpolation("area")
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
}

func BenchmarkPrepare1080p(b *testing.B) {
	src := noiseImage(1920, 1080, 1)
	p := NewPreprocessor(DefaultOptions())

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := p.Prepare(src, DefaultTargetSize); err != nil {
			b.Fatal(err)
		}
	}
}
