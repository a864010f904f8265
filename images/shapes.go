// Package images - Image geometry, letterboxing and decoding utilities.
package images

import "github.com/chewxy/math32"

// Rect is a corner-form bounding box with float32 coordinates.
type Rect struct {
	// X1,Y1 is the top-left corner, X2,Y2 the bottom-right corner.
	X1, Y1, X2, Y2 float32
}

// RectFromCenter converts a centre-form box (cx, cy, w, h) into corner form.
//
// Arguments:
//   - cx, cy: The centre of the box.
//   - w, h: The width and height of the box.
//
// Returns:
//   - Rect: The corner-form box.
//
// @example
// r := RectFromCenter(50, 50, 20, 10) // Rect{X1: 40, Y1: 45, X2: 60, Y2: 55}
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Width returns X2-X1, or 0 for an inverted box.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns Y2-Y1, or 0 for an inverted box.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box; inverted boxes have zero area.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Center returns the centre point of the box.
func (r Rect) Center() (cx, cy float32) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// Clamp restricts every coordinate to [0, width] x [0, height].
//
// Arguments:
//   - width: The upper bound for X coordinates.
//   - height: The upper bound for Y coordinates.
//
// Returns:
//   - Rect: The clamped box.
func (r Rect) Clamp(width, height float32) Rect {
	return r.ClampTo(Rect{X2: width, Y2: height})
}

// ClampTo restricts every coordinate to the area of bounds.
func (r Rect) ClampTo(bounds Rect) Rect {
	return Rect{
		X1: clamp(r.X1, bounds.X1, bounds.X2),
		Y1: clamp(r.Y1, bounds.Y1, bounds.Y2),
		X2: clamp(r.X2, bounds.X1, bounds.X2),
		Y2: clamp(r.Y2, bounds.Y1, bounds.Y2),
	}
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU is the area of the overlap divided by the area covered by both boxes:
//
//	IoU = Area(r ∩ o) / (Area(r) + Area(o) - Area(r ∩ o))
//
// A value of 1.0 means identical boxes and 0.0 means no overlap. A box with
// zero area has an IoU of 0 against everything, including itself, so the
// division can never be by zero.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: A value in [0, 1].
//
// @example
// a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
// b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
// iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
func CalculateIoU(r, o Rect) float32 {
	areaR := r.Area()
	areaO := o.Area()
	if areaR <= 0 || areaO <= 0 {
		return 0
	}

	interW := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	interH := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	union := areaR + areaO - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	if math32.IsNaN(v) {
		return lo
	}
	return math32.Min(math32.Max(v, lo), hi)
}
