package images

import (
	"image"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{name: "Identical rectangles", r1: Rect{0, 0, 100, 100}, r2: Rect{0, 0, 100, 100}, expected: 1.0},
		{name: "No overlap", r1: Rect{0, 0, 100, 100}, r2: Rect{200, 200, 300, 300}, expected: 0.0},
		{name: "Touching edges", r1: Rect{0, 0, 100, 100}, r2: Rect{100, 0, 200, 100}, expected: 0.0},
		// intersection=2500, union=17500
		{name: "Half overlap", r1: Rect{0, 0, 100, 100}, r2: Rect{50, 50, 150, 150}, expected: 0.142857},
		// intersection=100, union=19900
		{name: "Small overlap", r1: Rect{0, 0, 100, 100}, r2: Rect{90, 90, 190, 190}, expected: 0.005025},
		{name: "One inside other", r1: Rect{0, 0, 100, 100}, r2: Rect{25, 25, 75, 75}, expected: 0.25},
		{name: "Fractional", r1: Rect{0.5, 0.5, 10.5, 10.5}, r2: Rect{5.5, 0.5, 15.5, 10.5}, expected: 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, result, 0.001)

			// IoU(A, B) == IoU(B, A)
			assert.InDelta(t, result, CalculateIoU(tt.r2, tt.r1), 1e-6)
		})
	}
}

// TestIoU_vs_ImageRectangle compares the implementation against image.Rectangle
// on integer boxes.
func TestIoU_vs_ImageRectangle(t *testing.T) {
	testCases := []struct {
		name   string
		r1, r2 image.Rectangle
	}{
		{"No overlap", image.Rect(0, 0, 100, 100), image.Rect(200, 200, 300, 300)},
		{"Partial overlap", image.Rect(0, 0, 100, 100), image.Rect(50, 50, 150, 150)},
		{"Full overlap", image.Rect(50, 50, 150, 150), image.Rect(50, 50, 150, 150)},
		{"One inside other", image.Rect(0, 0, 100, 100), image.Rect(25, 25, 75, 75)},
		{"Large boxes", image.Rect(0, 0, 1920, 1080), image.Rect(960, 540, 1920, 1080)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateIoU(fromImageRect(tc.r1), fromImageRect(tc.r2))
			assert.InDelta(t, imageRectangleIoU(tc.r1, tc.r2), got, 0.0001)
		})
	}
}

func fromImageRect(r image.Rectangle) Rect {
	return Rect{float32(r.Min.X), float32(r.Min.Y), float32(r.Max.X), float32(r.Max.Y)}
}

// imageRectangleIoU implements IoU using Go's standard library image.Rectangle
func imageRectangleIoU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0.0
	}

	intersectArea := intersect.Dx() * intersect.Dy()
	union := r1.Dx()*r1.Dy() + r2.Dx()*r2.Dy() - intersectArea

	return float32(intersectArea) / float32(union)
}

// TestIoU_EdgeCases tests degenerate boxes and extreme coordinates
func TestIoU_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{"Zero area rectangle 1", Rect{0, 0, 0, 0}, Rect{0, 0, 100, 100}, 0},
		{"Zero area rectangle 2", Rect{0, 0, 100, 100}, Rect{50, 50, 50, 50}, 0},
		{"Both zero area", Rect{10, 10, 10, 10}, Rect{10, 10, 10, 10}, 0},
		{"Zero width line inside box", Rect{50, 0, 50, 100}, Rect{0, 0, 100, 100}, 0},
		{"Inverted box", Rect{100, 100, 0, 0}, Rect{0, 0, 100, 100}, 0},
		{"Negative coordinates", Rect{-100, -100, 0, 0}, Rect{-100, -100, 0, 0}, 1},
		{"Single pixel", Rect{0, 0, 1, 1}, Rect{0, 0, 1, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r1, tt.r2), 1e-6)
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r2, tt.r1), 1e-6)
		})
	}

	large := CalculateIoU(Rect{0, 0, 999999, 999999}, Rect{500000, 500000, 999999, 999999})
	assert.True(t, large >= 0 && large <= 1, "IoU %v outside [0, 1]", large)
}

func TestRectFromCenter(t *testing.T) {
	r := RectFromCenter(50, 50, 20, 10)
	assert.Equal(t, Rect{X1: 40, Y1: 45, X2: 60, Y2: 55}, r)
	assert.Equal(t, float32(20), r.Width())
	assert.Equal(t, float32(10), r.Height())
	assert.Equal(t, float32(200), r.Area())

	cx, cy := r.Center()
	assert.Equal(t, float32(50), cx)
	assert.Equal(t, float32(50), cy)
}

func TestRectClamp(t *testing.T) {
	r := Rect{X1: -10, Y1: 5, X2: 120, Y2: 300}.Clamp(100, 200)
	assert.Equal(t, Rect{X1: 0, Y1: 5, X2: 100, Y2: 200}, r)

	nan := math32.NaN()
	r = Rect{X1: nan, Y1: nan, X2: math32.Inf(1), Y2: math32.Inf(-1)}.Clamp(100, 200)
	assert.Equal(t, Rect{X1: 0, Y1: 0, X2: 100, Y2: 0}, r)
}

func TestRectClampTo(t *testing.T) {
	bounds := Rect{X1: 10, Y1: 20, X2: 110, Y2: 220}
	r := Rect{X1: 0, Y1: 50, X2: 300, Y2: 100}.ClampTo(bounds)
	assert.Equal(t, Rect{X1: 10, Y1: 50, X2: 110, Y2: 100}, r)

	outside := Rect{X1: 200, Y1: 300, X2: 250, Y2: 400}.ClampTo(bounds)
	assert.Zero(t, outside.Area())
}
