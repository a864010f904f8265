package images

import (
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/common"
)

// DefaultQuality is the lossy quality used by Encode when none is given.
const DefaultQuality = 90

// Encode writes img in the given format. Quality applies to JPEG and lossy
// WebP; a quality of 0 selects DefaultQuality.
//
// Arguments:
//   - w: The destination.
//   - img: The image.
//   - format: FormatJPEG, FormatPNG, FormatGIF or FormatWebP.
//   - quality: The lossy quality in [1, 100].
//
// Returns:
//   - error: An ErrInvalidConfig error for an unsupported format, or the
//     encoder's error.
func Encode(w io.Writer, img image.Image, format ImageFormat, quality int) error {
	if quality <= 0 {
		quality = DefaultQuality
	}

	var err error
	switch format {
	case FormatJPEG:
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		err = imaging.Encode(w, img, imaging.PNG)
	case FormatGIF:
		err = imaging.Encode(w, img, imaging.GIF)
	case FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		return common.Errorf(common.ErrInvalidConfig, "unsupported image format %q", format)
	}
	return errors.Wrapf(err, "error encoding %s", format)
}
