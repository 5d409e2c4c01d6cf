package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/version"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
	defaultTimeout  = 5 * time.Minute
	partialFileMode = 0o600
)

var (
	// ErrFailed is returned when every attempt to download a file failed.
	ErrFailed = errors.New("download failed")

	// errBadHTTPStatus marks a non-200 response.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Fetcher downloads files. The zero value is not usable; call NewFetcher.
type Fetcher struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout bounds each HTTP request.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.client.Timeout = timeout
		}
	}
}

// WithAttempts sets how many times a download is tried.
func WithAttempts(attempts int) Option {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.attempts = attempts
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*backoff.
func WithBackoff(backoff time.Duration) Option {
	return func(f *Fetcher) {
		if backoff >= 0 {
			f.backoff = backoff
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewFetcher returns a Fetcher with the given options applied.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// JoinURL appends name to the path of base.
func JoinURL(base, name string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	parsed.Path = path.Join("/", parsed.Path, name)

	return parsed.String(), nil
}

// ToFile downloads rawURL into dst and returns the lowercase hex SHA-256 of
// the written bytes. Transport errors, 429 and 5xx answers are retried up to
// the attempt limit; dst is removed when the download fails.
func (f *Fetcher) ToFile(ctx context.Context, rawURL, dst string) (string, error) {
	digest, err := f.download(ctx, rawURL, dst)
	if err != nil {
		_ = os.Remove(dst)

		logger.WarnKV(ctx, "Download failed", "url", rawURL, "attempts", f.attempts, "error", err)

		return "", fmt.Errorf("%w: %s: %w", ErrFailed, rawURL, err)
	}

	return digest, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dst string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	// Some forges answer 403 to requests without a user agent.
	req.Header.Set("User-Agent", version.UserAgent())

	response, err := f.retryClient().Do(req)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %w", response.Status, errBadHTTPStatus)
	}

	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, partialFileMode)
	if err != nil {
		return "", err
	}

	hasher := sha256.New()

	if _, err = io.Copy(io.MultiWriter(out, hasher), response.Body); err != nil {
		_ = out.Close()

		return "", err
	}

	if err = out.Sync(); err != nil {
		_ = out.Close()

		return "", err
	}

	if err = out.Close(); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// retryClient wraps the HTTP client with the attempt limit and a linear backoff.
func (f *Fetcher) retryClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = f.client
	client.Logger = nil
	client.RetryMax = f.attempts - 1
	client.RetryWaitMin = f.backoff
	client.RetryWaitMax = time.Duration(f.attempts) * f.backoff
	client.Backoff = linearBackoff
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.WarnKV(req.Context(), "Retrying download",
				"url", req.URL.Redacted(), "attempt", attempt+1, "attempts", f.attempts)
		}
	}

	return client
}

// linearBackoff waits (retry+1)*minWait, so attempt n waits n*backoff.
func linearBackoff(minWait, _ time.Duration, retry int, _ *http.Response) time.Duration {
	return time.Duration(retry+1) * minWait
}
