package common

import (
	"fmt"
	"image"
)

// BoundingBox is a detection box in centre form: X and Y are the centre of the
// box, Width and Height its extent, all in original-image pixels.
type BoundingBox struct {
	X      float32 `json:"x"      yaml:"x"`
	Y      float32 `json:"y"      yaml:"y"`
	Width  float32 `json:"width"  yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// NewBoundingBox converts corner coordinates into a centre-form box.
//
// Arguments:
//   - x1, y1: The top-left corner.
//   - x2, y2: The bottom-right corner.
//
// Returns:
//   - BoundingBox: The centre-form box.
//
// @example
// box := NewBoundingBox(0, 0, 100, 50) // {X: 50, Y: 25, Width: 100, Height: 50}
func NewBoundingBox(x1, y1, x2, y2 float32) BoundingBox {
	w := x2 - x1
	h := y2 - y1
	return BoundingBox{
		X:      x1 + w/2,
		Y:      y1 + h/2,
		Width:  w,
		Height: h,
	}
}

// Corners returns the box as (x1, y1, x2, y2).
func (b BoundingBox) Corners() (x1, y1, x2, y2 float32) {
	return b.X - b.Width/2, b.Y - b.Height/2, b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns Width*Height.
func (b BoundingBox) Area() float32 {
	return b.Width * b.Height
}

// ToRect converts the box to an image.Rectangle, truncating fractional pixels.
//
// Returns:
//   - image.Rectangle: The canonical integer rectangle.
func (b BoundingBox) ToRect() image.Rectangle {
	x1, y1, x2, y2 := b.Corners()
	return image.Rect(int(x1), int(y1), int(x2), int(y2)).Canon()
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.2f, %.2f) %.2fx%.2f", b.X, b.Y, b.Width, b.Height)
}
