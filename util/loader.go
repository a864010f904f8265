// Package util - Image acquisition from files, directories and URLs.
package util

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

// imageExtensions are the file extensions LoadImageDir picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
}

// Decode decodes the file contents.
func (f ImageFile) Decode() (image.Image, error) {
	img, err := images.DecodeBytes(f.Data)
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding %s", f.Path)
	}
	return img, nil
}

// LoadImageFile reads and decodes one image file, applying its EXIF
// orientation.
//
// Arguments:
//   - path: The image file.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: A read error, or ErrInvalidImage if the file is not a usable image.
func LoadImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading image %s", path)
	}
	return ImageFile{Path: path, Data: data}.Decode()
}

// LoadImageDir reads every image file directly inside dir, sorted by name.
// Subdirectories and files with other extensions are skipped.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The raw bytes of each image file.
//   - error: Error if loading fails.
func LoadImageDir(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading directory %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading image %s", path)
		}
		files = append(files, ImageFile{Path: path, Data: data})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}
