package images

import (
	"bytes"
	"image"
	"io"

	// Registers the WebP decoder with image.Decode.
	_ "github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/common"
)

// ImageFormat represents supported image formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// MaxPixels bounds the width x height an encoded image may declare. Larger
// images are rejected from their header, before pixels are allocated.
var MaxPixels = 8192 * 8192

// Decode reads an encoded image, applying its EXIF orientation so that the
// returned pixels are upright. The result is rejected when it has no pixels.
//
// Arguments:
//   - r: The encoded image (JPEG, PNG, GIF, BMP, TIFF or WebP).
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An ErrInvalidImage error if decoding fails or the image declares
//     more than MaxPixels pixels.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(common.ErrInvalidImage, err.Error())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(common.ErrInvalidImage, err.Error())
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(MaxPixels) {
		return nil, common.Errorf(common.ErrInvalidImage, "image declares %dx%d pixels, limit is %d", cfg.Width, cfg.Height, MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(common.ErrInvalidImage, err.Error())
	}
	if err := Validate(img); err != nil {
		return nil, err
	}
	return img, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, common.Errorf(common.ErrInvalidImage, "image data is empty")
	}
	return Decode(bytes.NewReader(data))
}

// DetectFormat returns the registered format name of the encoded image without
// decoding the pixel data.
func DetectFormat(data []byte) (ImageFormat, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(common.ErrInvalidImage, err.Error())
	}
	return ImageFormat(format), nil
}

// Validate checks that img is non-nil and has a positive width and height.
//
// Arguments:
//   - img: The image to validate.
//
// Returns:
//   - error: An ErrInvalidImage error describing the problem, or nil.
func Validate(img image.Image) error {
	if img == nil {
		return common.Errorf(common.ErrInvalidImage, "image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return common.Errorf(common.ErrInvalidImage, "invalid image dimensions: %dx%d", b.Dx(), b.Dy())
	}
	return nil
}
