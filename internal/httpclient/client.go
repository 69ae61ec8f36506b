// Package httpclient provides the shared outbound HTTP client used by every
// platform adapter: one pooled transport per process, bounded retries with
// exponential backoff, and normalization of transport-level failures into the
// platform error taxonomy.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/maheshrc27/crosspost/internal/platform/kind"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 20
)

// retryableStatus holds the status codes worth a second attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Client wraps a connection-pooled http.Client with retry and backoff. One
// instance is created at process start and injected into every adapter; it is
// closed on shutdown, never torn down lazily.
type Client struct {
	http        *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	// sleep is swapped out by tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

type Options struct {
	Headers map[string]string
	Query   url.Values
	Body    []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		sleep:       sleepContext,
	}
}

// Close releases pooled connections. Call once on process shutdown.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Do executes the request with up to MaxAttempts tries. Connection failures,
// timeouts and 429/502/503/504 responses are retried with exponential backoff
// (base * 2^attempt, capped); a Retry-After header on a 429 overrides the
// computed delay. 401 and 403 are never retried and surface immediately as
// authentication errors. Exhausting retries returns a typed error carrying
// the last status or transport failure.
func (c *Client) Do(ctx context.Context, method, rawURL string, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	if len(opts.Query) > 0 {
		sep := "?"
		if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		rawURL = rawURL + sep + opts.Query.Encode()
	}

	var lastErr error
	var lastStatus int

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		var body io.Reader
		if opts.Body != nil {
			body = bytes.NewReader(opts.Body)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, kind.New(kind.PermanentAPI, "", fmt.Sprintf("invalid request: %v", err))
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < c.maxAttempts-1 {
				delay := c.backoff(attempt)
				slog.Warn("request failed, retrying",
					"url", rawURL, "attempt", attempt+1, "delay", delay, "error", err)
				if serr := c.sleep(ctx, delay); serr != nil {
					return nil, serr
				}
				continue
			}
			break
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < c.maxAttempts-1 {
				if serr := c.sleep(ctx, c.backoff(attempt)); serr != nil {
					return nil, serr
				}
				continue
			}
			break
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, &kind.Error{
				Kind:       kind.Authentication,
				Message:    "authentication failed: invalid or expired credentials",
				StatusCode: resp.StatusCode,
			}
		case resp.StatusCode == http.StatusForbidden:
			return nil, &kind.Error{
				Kind:       kind.Authentication,
				Message:    "authorization failed: insufficient permissions",
				StatusCode: resp.StatusCode,
			}
		case retryableStatus[resp.StatusCode]:
			lastStatus = resp.StatusCode
			if attempt < c.maxAttempts-1 {
				delay := c.backoff(attempt)
				if resp.StatusCode == http.StatusTooManyRequests {
					if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
						delay = ra
					}
				}
				slog.Warn("server error, retrying",
					"url", rawURL, "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)
				if serr := c.sleep(ctx, delay); serr != nil {
					return nil, serr
				}
				continue
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
				return nil, &kind.Error{
					Kind:       kind.RateLimit,
					Message:    fmt.Sprintf("rate limit exceeded for %s", rawURL),
					StatusCode: resp.StatusCode,
					RetryAfter: retryAfter,
				}
			}
			return nil, &kind.Error{
				Kind:       kind.PermanentAPI,
				Message:    fmt.Sprintf("request failed after %d attempts: HTTP %d", c.maxAttempts, lastStatus),
				StatusCode: lastStatus,
			}
		default:
			return &Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       respBody,
			}, nil
		}
	}

	var netErr net.Error
	if errors.As(lastErr, &netErr) && netErr.Timeout() {
		return nil, &kind.Error{
			Kind:    kind.TransientNetwork,
			Message: fmt.Sprintf("request to %s timed out after %d attempts", rawURL, c.maxAttempts),
		}
	}
	return nil, &kind.Error{
		Kind:    kind.TransientNetwork,
		Message: fmt.Sprintf("request failed after %d attempts: %v", c.maxAttempts, lastErr),
	}
}

// Get is a convenience wrapper for header-only GET requests.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, &Options{Headers: headers})
}

// Head issues a single HEAD request without retries; used for lightweight
// existence probes where a failure is not worth backoff.
func (c *Client) Head(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay << uint(attempt)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
