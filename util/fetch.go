package util

import (
	"context"
	"image"
	"io"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detect/images"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid image url")
	// ErrFetchFailed is returned when an image cannot be downloaded.
	ErrFetchFailed = errors.New("image fetch failed")
)

// FetchOptions configures a Fetcher.
type FetchOptions struct {
	// Timeout bounds the whole request, 0 for none.
	Timeout time.Duration
	// MaxBytes bounds the response body.
	MaxBytes int64
	// UserAgent is sent with every request.
	UserAgent string
	// Logger receives one debug line per download; nil selects the standard logger.
	Logger logrus.FieldLogger
}

// Fetcher downloads images over HTTP. It is safe for concurrent use.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
	logger   logrus.FieldLogger
}

// NewFetcher creates a fetcher.
//
// Arguments:
//   - opts: Timeout, body limit, user agent and logger.
//
// Returns:
//   - *Fetcher: The fetcher.
//
// @example
// f := util.NewFetcher(util.FetchOptions{Timeout: 15 * time.Second, MaxBytes: 20 << 20})
// img, err := f.FetchImage(ctx, "https://example.com/shirt.jpg")
func NewFetcher(opts FetchOptions) *Fetcher {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	return &Fetcher{client: client, maxBytes: opts.MaxBytes, logger: opts.Logger}
}

// Fetch downloads rawURL.
//
// Arguments:
//   - ctx: Cancels the request.
//   - rawURL: An absolute http or https URL.
//
// Returns:
//   - []byte: The response body.
//   - error: ErrInvalidURL for a bad URL; ErrFetchFailed for transport errors,
//     non-2xx responses and bodies over the size limit.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidURL, err.Error())
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "%q is not an absolute http(s) url", rawURL)
	}

	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, errors.Wrap(ErrFetchFailed, err.Error())
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, errors.Wrapf(ErrFetchFailed, "GET %s returned %s", u.Redacted(), resp.Status())
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(ErrFetchFailed, err.Error())
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.Wrapf(ErrFetchFailed, "response body exceeds %d bytes", f.maxBytes)
	}

	f.logger.WithFields(logrus.Fields{
		"url":      u.Redacted(),
		"bytes":    len(data),
		"duration": time.Since(start),
	}).Debug("fetched image")
	return data, nil
}

// FetchImage downloads and decodes rawURL.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	data, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return images.DecodeBytes(data)
}
