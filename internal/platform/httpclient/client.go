// Package httpclient is the worker's out-of-core fetch collaborator: it
// retrieves one page's body over HTTP given a URL string.
//
// Client/Config/New/Fetch follow a familiar shape (timeout, rate
// limiting via time.Tick, body size limit, User-Agent), generalized with
// two more additions: golang.org/x/net/http2 configures the transport
// for HTTP/2, and golang.org/x/sync/singleflight collapses concurrent
// duplicate fetches of the same URL, which matters here because distinct
// workers across distinct farmers can discover and request the same
// shared asset at close to the same time.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodySize is the default maximum response body size (2MB).
	DefaultMaxBodySize = 2 * 1024 * 1024
	// DefaultUserAgent is the default User-Agent header.
	DefaultUserAgent = "sitecrawler/1.0"
)

// FetchError reports a failed fetch: a non-2xx status, or a transport
// failure wrapped in Err. Per the crawler's error design, a FetchError
// never propagates past the worker; it becomes a zero-valued PageStats
// instead.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("httpclient: fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("httpclient: fetching %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client is an HTTP client with timeout, rate limiting, body size limits,
// and duplicate-fetch collapsing. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
	rateLimiter <-chan time.Time
	group       singleflight.Group
}

// Config contains configuration options for the HTTP client.
type Config struct {
	// Timeout is the total request timeout (default: 10s).
	Timeout time.Duration
	// UserAgent is the User-Agent header to send (default: "sitecrawler/1.0").
	UserAgent string
	// MaxBodySize is the maximum response body size in bytes (default: 2MB).
	MaxBodySize int64
	// RateLimit is the minimum duration between requests (0 = no limit).
	RateLimit time.Duration
}

// New creates a new HTTP client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	transport := &http.Transport{}
	// Best-effort: a server that can't speak h2 still falls back to 1.1.
	_ = http2.ConfigureTransport(transport)

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}

	if cfg.RateLimit > 0 {
		c.rateLimiter = time.Tick(cfg.RateLimit)
	}

	return c
}

// Fetch retrieves the body at url as a string. Concurrent Fetch calls for
// the same url are collapsed into a single round trip; every caller gets
// the same body and the same error.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	if c.rateLimiter != nil {
		select {
		case <-c.rateLimiter:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	body, err, _ := c.group.Do(url, func() (any, error) {
		return c.fetchOnce(ctx, url)
	})
	if err != nil {
		return "", err
	}
	return body.(string), nil
}

func (c *Client) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	limited := io.LimitReader(resp.Body, c.maxBodySize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}

	return string(body), nil
}
