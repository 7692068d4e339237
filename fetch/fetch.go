// Package fetch - Downloads images submitted by URL.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http or https URLs.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrTooLarge is returned when a body exceeds the size limit.
	ErrTooLarge = errors.New("downloaded image exceeds the size limit")
)

// StatusError is returned when the remote server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// retryable reports whether the status may succeed on a later attempt.
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxElapsed bounds all attempts; zero disables retries.
	MaxElapsed time.Duration
	// MaxBytes caps the body size; zero disables the cap.
	MaxBytes int64
	// UserAgent is sent with every request.
	UserAgent string
	// Client overrides the HTTP client.
	Client *http.Client
	// Logger receives retry warnings.
	Logger logrus.FieldLogger
}

// Fetcher downloads images over HTTP with retries.
type Fetcher struct {
	opts   Options
	client *http.Client
	logger logrus.FieldLogger
}

// New creates a Fetcher.
//
// Arguments:
//   - opts: The fetch options.
//
// Returns:
//   - *Fetcher: The fetcher.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{opts: opts, client: client, logger: logger}
}

// ValidateURL checks that raw is an absolute http or https URL.
//
// Arguments:
//   - raw: The URL.
//
// Returns:
//   - *url.URL: The parsed URL.
//   - error: ErrInvalidURL if the URL cannot be fetched.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidURL, err.Error())
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "%q", raw)
	}
	return u, nil
}

// Fetch downloads the body at rawURL.
//
// Network errors, 429 and 5xx responses are retried with exponential backoff until
// MaxElapsed. Other failures return immediately.
//
// Arguments:
//   - ctx: Cancels the download and any pending retry.
//   - rawURL: The image URL.
//
// Returns:
//   - []byte: The body.
//   - error: ErrInvalidURL, ErrTooLarge, *StatusError, the context error or a network error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	var body []byte
	operation := func() error {
		var err error
		body, err = f.fetchOnce(ctx, u.String())
		if err == nil {
			return nil
		}
		var status *StatusError
		if errors.As(err, &status) && !status.retryable() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		f.logger.WithFields(logrus.Fields{
			"url":   u.Redacted(),
			"retry": wait.String(),
		}).WithError(err).Warn("image download failed")
	}

	if err := backoff.RetryNotify(operation, f.policy(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) policy(ctx context.Context) backoff.BackOff {
	if f.opts.MaxElapsed <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = f.opts.MaxElapsed
	return backoff.WithContext(b, ctx)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch image")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	var reader io.Reader = resp.Body
	if f.opts.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image body")
	}
	if f.opts.MaxBytes > 0 && int64(len(body)) > f.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}
