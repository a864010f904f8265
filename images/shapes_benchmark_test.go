package images

import (
	"math/rand"
	"testing"
)

// BenchmarkIoU_NonOverlapping exercises the early return for disjoint boxes.
func BenchmarkIoU_NonOverlapping(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 200, Y1: 200, X2: 300, Y2: 300}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoU_PartialOverlap exercises the full calculation path.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoU_Random mirrors NMS workloads over random boxes in a 640x640 canvas.
func BenchmarkIoU_Random(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	boxes := make([]Rect, 1024)
	for i := range boxes {
		boxes[i] = RectFromCenter(rng.Float32()*640, rng.Float32()*640, rng.Float32()*200, rng.Float32()*200)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(boxes[i%len(boxes)], boxes[(i*7+1)%len(boxes)])
	}
}

// BenchmarkLetterboxTransform_Inverse measures the per-detection inverse mapping.
func BenchmarkLetterboxTransform_Inverse(b *testing.B) {
	t := NewLetterboxTransform(1920, 1080, 640)
	r := Rect{X1: 100, Y1: 200, X2: 300, Y2: 400}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = t.Inverse(r)
	}
}
