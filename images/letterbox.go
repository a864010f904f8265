package images

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// PadColor is the mid-gray fill used for letterbox padding.
var PadColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// LetterboxTransform records how an image was placed into the square model
// input, and maps boxes between the two coordinate spaces.
type LetterboxTransform struct {
	// Target is the edge of the square model input.
	Target int `json:"target" yaml:"target"`
	// Source is the original image size.
	Source image.Point `json:"source" yaml:"source"`
	// Scaled is the size of the resized image inside the canvas.
	Scaled image.Point `json:"scaled" yaml:"scaled"`
	// Scale is the uniform factor min(target/width, target/height).
	Scale float32 `json:"scale" yaml:"scale"`
	// PadX and PadY are the offsets of the resized image inside the canvas.
	PadX float32 `json:"pad_x" yaml:"pad_x"`
	PadY float32 `json:"pad_y" yaml:"pad_y"`
}

// NewLetterboxTransform computes the letterbox geometry for a width x height
// image placed into a target x target canvas. All arguments must be positive.
//
// The scaled size is rounded to the nearest pixel and kept within [1, target];
// the pads are the integer offsets that centre it, so the inverse mapping is
// exact for every placed pixel.
//
// Arguments:
//   - width: The source image width.
//   - height: The source image height.
//   - target: The square model input edge.
//
// Returns:
//   - LetterboxTransform: The transform.
//
// @example
// t := NewLetterboxTransform(1280, 720, 640)
// // t.Scale == 0.5, t.Scaled == (640, 360), t.PadX == 0, t.PadY == 140
func NewLetterboxTransform(width, height, target int) LetterboxTransform {
	scale := math.Min(float64(target)/float64(width), float64(target)/float64(height))

	scaledW := clampInt(int(math.Round(float64(width)*scale)), 1, target)
	scaledH := clampInt(int(math.Round(float64(height)*scale)), 1, target)

	return LetterboxTransform{
		Target: target,
		Source: image.Point{X: width, Y: height},
		Scaled: image.Point{X: scaledW, Y: scaledH},
		Scale:  float32(scale),
		PadX:   float32((target - scaledW) / 2),
		PadY:   float32((target - scaledH) / 2),
	}
}

// Forward maps a box from original-image space into model-input space.
func (t LetterboxTransform) Forward(r Rect) Rect {
	return Rect{
		X1: r.X1*t.Scale + t.PadX,
		Y1: r.Y1*t.Scale + t.PadY,
		X2: r.X2*t.Scale + t.PadX,
		Y2: r.Y2*t.Scale + t.PadY,
	}
}

// Content returns the area of the model input covered by the source image,
// in model-input pixels. Forward maps [0,W] x [0,H] exactly onto it.
func (t LetterboxTransform) Content() Rect {
	return Rect{
		X1: t.PadX,
		Y1: t.PadY,
		X2: t.PadX + float32(t.Source.X)*t.Scale,
		Y2: t.PadY + float32(t.Source.Y)*t.Scale,
	}
}

// Inverse maps a box from model-input space back into original-image space and
// clamps it to the original image bounds.
//
// Arguments:
//   - r: The box in model-input pixels.
//
// Returns:
//   - Rect: The box in original-image pixels, inside [0,W] x [0,H].
func (t LetterboxTransform) Inverse(r Rect) Rect {
	back := Rect{
		X1: (r.X1 - t.PadX) / t.Scale,
		Y1: (r.Y1 - t.PadY) / t.Scale,
		X2: (r.X2 - t.PadX) / t.Scale,
		Y2: (r.Y2 - t.PadY) / t.Scale,
	}
	return back.Clamp(float32(t.Source.X), float32(t.Source.Y))
}

// Letterbox resizes img according to t and centres it on a square canvas
// filled with fill.
//
// Arguments:
//   - img: The source image; its size must equal t.Source.
//   - t: The transform from NewLetterboxTransform.
//   - fill: The padding colour.
//   - interp: The resampling kernel.
//
// Returns:
//   - *image.RGBA: A t.Target x t.Target image.
func Letterbox(
	img image.Image,
	t LetterboxTransform,
	fill color.Color,
	interp resize.InterpolationFunction,
) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, t.Target, t.Target))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	resized := resize.Resize(uint(t.Scaled.X), uint(t.Scaled.Y), img, interp)

	padX, padY := int(t.PadX), int(t.PadY)
	dst := image.Rect(padX, padY, padX+t.Scaled.X, padY+t.Scaled.Y)
	draw.Draw(canvas, dst, resized, resized.Bounds().Min, draw.Over)

	return canvas
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
