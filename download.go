package civicscreen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DownloadOpts configures an image download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: cfg.MaxImageBytes)
	Timeout   time.Duration // per-request timeout (default: cfg.FetchTimeout)
	UserAgent string        // override config user agent
}

const defaultMaxImageBytes = 10 * 1024 * 1024 // 10MB

// DownloadResult holds downloaded image data.
type DownloadResult struct {
	Data     []byte
	MIMEType string
}

// Download fetches an image from url. Every failure, including a non-2xx
// status and the timeout expiring, is returned as a *FetchError.
// The rate limiter wait, when configured, counts against the same timeout.
func (cfg *Config) Download(ctx context.Context, url string, opts DownloadOpts) (*DownloadResult, error) {
	cfg.defaults()

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = cfg.MaxImageBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = cfg.FetchTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = cfg.UserAgent
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if cfg.FetchLimiter != nil {
		if err := cfg.FetchLimiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: url, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	return fetchImageData(ctx, cfg.HTTPClient, url, ua, opts.MaxBytes)
}

func fetchImageData(ctx context.Context, client *http.Client, imageURL, ua string, maxBytes int64) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: imageURL, Err: err}
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req) //nolint:gosec // URL comes from the submitted report
	if err != nil {
		return nil, &FetchError{URL: imageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: imageURL, StatusCode: resp.StatusCode}
	}

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, &FetchError{URL: imageURL, Err: err}
	}

	return &DownloadResult{Data: data, MIMEType: ct}, nil
}
