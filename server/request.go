package server

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
)

// requestError is a malformed request: bad JSON, a missing image or a
// parameter that does not parse.
type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// PredictRequest is the JSON form of a prediction request. Unset parameters
// take the server defaults.
type PredictRequest struct {
	// Image is the URL of the image.
	Image      string   `json:"image"`
	Size       *int     `json:"size,omitempty"`
	Confidence *float32 `json:"confidence,omitempty"`
	Overlap    *float32 `json:"overlap,omitempty"`
}

// readRequest extracts the image and the detection options from r. JSON
// bodies name an image URL, multipart bodies carry an "image" file part and
// any other body is the encoded image itself.
func (s *Server) readRequest(r *http.Request) (image.Image, detector.Options, error) {
	opts := s.defaults
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxBodyBytes)

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, opts, badRequest("invalid content type %q", ct)
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		return s.readJSON(r, opts)
	case "multipart/form-data":
		return s.readMultipart(r, opts)
	default:
		return s.readRaw(r, opts)
	}
}

func (s *Server) readJSON(r *http.Request, opts detector.Options) (image.Image, detector.Options, error) {
	var req PredictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, opts, err
		}
		return nil, opts, badRequest("invalid JSON body: %v", err)
	}
	if strings.TrimSpace(req.Image) == "" {
		return nil, opts, badRequest("image url is required")
	}
	if req.Size != nil {
		if err := checkSize(*req.Size); err != nil {
			return nil, opts, err
		}
		opts.TargetSize = *req.Size
	}
	if req.Confidence != nil {
		opts.ConfThreshold = *req.Confidence
	}
	if req.Overlap != nil {
		opts.IoUThreshold = *req.Overlap
	}
	if s.fetcher == nil {
		return nil, opts, badRequest("image urls are not supported by this server")
	}

	img, err := s.fetcher.FetchImage(r.Context(), req.Image)
	return img, opts, err
}

func (s *Server) readMultipart(r *http.Request, opts detector.Options) (image.Image, detector.Options, error) {
	if err := r.ParseMultipartForm(s.maxBodyBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, opts, err
		}
		return nil, opts, badRequest("invalid multipart body: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := applyParams(r.MultipartForm.Value, opts)
	if err != nil {
		return nil, opts, err
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, opts, badRequest("multipart body needs an image file part")
	}
	defer file.Close()

	img, err := images.Decode(file)
	return img, opts, err
}

func (s *Server) readRaw(r *http.Request, opts detector.Options) (image.Image, detector.Options, error) {
	opts, err := applyParams(r.URL.Query(), opts)
	if err != nil {
		return nil, opts, err
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, opts, err
	}
	if len(data) == 0 {
		return nil, opts, badRequest("request body is empty")
	}

	img, err := images.DecodeBytes(data)
	return img, opts, err
}

// applyParams overrides opts with the size, confidence and overlap values.
func applyParams(values url.Values, opts detector.Options) (detector.Options, error) {
	if v := values.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return opts, badRequest("size %q is not an integer", v)
		}
		if err := checkSize(size); err != nil {
			return opts, err
		}
		opts.TargetSize = size
	}
	if v := values.Get("confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return opts, badRequest("confidence %q is not a number", v)
		}
		opts.ConfThreshold = float32(f)
	}
	if v := values.Get("overlap"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return opts, badRequest("overlap %q is not a number", v)
		}
		opts.IoUThreshold = float32(f)
	}
	return opts, nil
}

// maxTargetSize bounds the model input edge a request may ask for.
const maxTargetSize = 4096

func checkSize(size int) error {
	if size > maxTargetSize {
		return badRequest("size %d exceeds the maximum of %d", size, maxTargetSize)
	}
	return nil
}
