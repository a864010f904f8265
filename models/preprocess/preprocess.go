// Package preprocess - Letterbox preprocessing of images into model input tensors.
package preprocess

import (
	"image"
	"image/color"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
)

// DefaultTargetSize is the square input edge of stock YOLOv8 exports.
const DefaultTargetSize = 640

// Options configures a Preprocessor.
type Options struct {
	// PadColor fills the canvas around the resized image.
	PadColor color.Color
	// Interpolation is the resampling kernel used to resize the image.
	Interpolation resize.InterpolationFunction
}

// DefaultOptions returns mid-gray padding and bilinear resampling.
func DefaultOptions() Options {
	return Options{
		PadColor:      images.PadColor,
		Interpolation: resize.Bilinear,
	}
}

// ParseInterpolation maps a kernel name to an interpolation function. An empty
// name selects bilinear.
func ParseInterpolation(name string) (resize.InterpolationFunction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear":
		return resize.Bilinear, nil
	case "nearest":
		return resize.NearestNeighbor, nil
	case "bicubic":
		return resize.Bicubic, nil
	case "mitchell":
		return resize.MitchellNetravali, nil
	case "lanczos2":
		return resize.Lanczos2, nil
	case "lanczos3", "lanczos":
		return resize.Lanczos3, nil
	default:
		return 0, common.Errorf(common.ErrInvalidConfig, "unknown interpolation %q", name)
	}
}

// Prepared is the output of Prepare: the model input and the geometry needed
// to map detections back onto the original image.
type Prepared struct {
	// Tensor is the (1, 3, T, T) model input.
	Tensor *inference.InputTensor
	// Original is the size of the input image.
	Original image.Point
	// Scaled is the size of the resized image inside the canvas.
	Scaled image.Point
	// Transform maps boxes between model-input and original-image pixels.
	Transform images.LetterboxTransform
}

// Preprocessor letterboxes images into model input tensors. It holds only its
// immutable options and is safe for concurrent use.
type Preprocessor struct {
	opts Options
}

// NewPreprocessor creates a preprocessor. Zero Options select DefaultOptions;
// otherwise a nil PadColor selects images.PadColor.
//
// Arguments:
//   - opts: The pad colour and resampling kernel.
//
// Returns:
//   - *Preprocessor: The preprocessor.
//
// @example
// p := NewPreprocessor(DefaultOptions())
// prepared, err := p.Prepare(img, 640)
func NewPreprocessor(opts Options) *Preprocessor {
	if opts.PadColor == nil && opts.Interpolation == resize.NearestNeighbor {
		return &Preprocessor{opts: DefaultOptions()}
	}
	if opts.PadColor == nil {
		opts.PadColor = images.PadColor
	}
	return &Preprocessor{opts: opts}
}

// Prepare letterboxes img into a targetSize x targetSize canvas and converts
// it into a float32 RGB tensor in CHW order with values in [0, 1].
//
// Arguments:
//   - img: The image; it is not modified.
//   - targetSize: The square model input edge.
//
// Returns:
//   - *Prepared: The tensor, the original and scaled sizes and the transform.
//   - error: ErrInvalidImage for an empty image, ErrInvalidConfig for a
//     non-positive target size.
func (p *Preprocessor) Prepare(img image.Image, targetSize int) (*Prepared, error) {
	if err := images.Validate(img); err != nil {
		return nil, err
	}
	if targetSize <= 0 {
		return nil, common.Errorf(common.ErrInvalidConfig, "target size must be positive, got %d", targetSize)
	}

	b := img.Bounds()
	transform := images.NewLetterboxTransform(b.Dx(), b.Dy(), targetSize)
	canvas := images.Letterbox(img, transform, p.opts.PadColor, p.opts.Interpolation)

	tensor, err := inference.NewInputTensor(targetSize, imageToTensor(canvas))
	if err != nil {
		return nil, errors.Wrap(err, "tensor conversion failed")
	}

	return &Prepared{
		Tensor:    tensor,
		Original:  transform.Source,
		Scaled:    transform.Scaled,
		Transform: transform,
	}, nil
}

// Prepare letterboxes img with the default options.
func Prepare(img image.Image, targetSize int) (*Prepared, error) {
	return NewPreprocessor(DefaultOptions()).Prepare(img, targetSize)
}

// imageToTensor converts an RGBA canvas into CHW float32 data scaled to [0, 1].
func imageToTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*width]
		for x := 0; x < width; x++ {
			i := y*width + x
			data[i] = float32(row[4*x]) / 255
			data[plane+i] = float32(row[4*x+1]) / 255
			data[2*plane+i] = float32(row[4*x+2]) / 255
		}
	}
	return data
}
