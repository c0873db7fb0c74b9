// Package limiter provides the shared outbound HTTP client: per-host
// request pacing, a bounded pool of in-flight slots, and retry with
// exponential backoff on transient failures.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Options configures a Client.
type Options struct {
	PoolSize     int           // Shared in-flight request slots across all hosts
	MinHostDelay time.Duration // Minimum gap between requests to one host
	MaxAttempts  int           // Total attempts per request (1 = no retry)
	MaxRedirects int           // Redirect cap per request
	Timeout      time.Duration // Per-request timeout
	UserAgent    string        // Sent when the request carries none
}

// DefaultOptions returns the pipeline-wide defaults.
func DefaultOptions() Options {
	return Options{
		PoolSize:     32,
		MinHostDelay: 500 * time.Millisecond,
		MaxAttempts:  3,
		MaxRedirects: 5,
		Timeout:      60 * time.Second,
		UserAgent:    "dailybrief/1.0 (+https://github.com/dailybrief)",
	}
}

// RequestError is the typed failure returned by Do.
type RequestError struct {
	URL       string
	Status    int // 0 when the request never got a response
	Transient bool
	Err       error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client is a rate-limited, retrying HTTP client. One Client is shared by
// every component that talks to the network.
type Client struct {
	opts Options
	http *http.Client
	pool *semaphore.Weighted

	mu    sync.Mutex
	hosts map[string]time.Time // last request start per host
}

// New builds a Client from the given options.
func New(opts Options) *Client {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultOptions().PoolSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	c := &Client{
		opts:  opts,
		pool:  semaphore.NewWeighted(int64(opts.PoolSize)),
		hosts: make(map[string]time.Time),
	}
	c.http = &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if opts.MaxRedirects > 0 && len(via) >= opts.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", opts.MaxRedirects)
			}
			return nil
		},
	}
	return c
}

// Do executes the request under the shared pool and the per-host pacer,
// retrying transient failures (network errors, 5xx, 429) with exponential
// backoff and jitter. Non-429 4xx responses return immediately. The
// response body is the caller's to close on success.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	if err := c.pool.Acquire(ctx, 1); err != nil {
		return nil, &RequestError{URL: req.URL.String(), Transient: true, Err: err}
	}
	defer c.pool.Release(1)

	var lastErr *RequestError
	var retryAfter time.Duration
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			if retryAfter > delay {
				delay = retryAfter
			}
			retryAfter = 0
			select {
			case <-ctx.Done():
				return nil, &RequestError{URL: req.URL.String(), Transient: true, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		if err := c.waitHost(ctx, req.URL.Hostname()); err != nil {
			return nil, &RequestError{URL: req.URL.String(), Transient: true, Err: err}
		}

		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, &RequestError{URL: req.URL.String(), Err: err}
			}
			attemptReq.Body = body
		}

		resp, err := c.http.Do(attemptReq)
		if err != nil {
			lastErr = &RequestError{URL: req.URL.String(), Transient: true, Err: err}
			continue
		}

		switch {
		case resp.StatusCode < 400:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			lastErr = &RequestError{URL: req.URL.String(), Status: resp.StatusCode, Transient: true}
		default:
			resp.Body.Close()
			return nil, &RequestError{URL: req.URL.String(), Status: resp.StatusCode}
		}
	}
	return nil, lastErr
}

// waitHost blocks until the per-host minimum delay has elapsed, then
// claims the slot for this request.
func (c *Client) waitHost(ctx context.Context, host string) error {
	if c.opts.MinHostDelay <= 0 {
		return nil
	}
	for {
		c.mu.Lock()
		last := c.hosts[host]
		wait := c.opts.MinHostDelay - time.Since(last)
		if wait <= 0 {
			c.hosts[host] = time.Now()
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// backoffDelay computes the wait before retry n: 1s, 2s, 4s... plus up to
// 10% jitter, capped at 30s.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base)/10 + 1))
	return base + jitter
}

// maxRetryAfter caps a server-supplied retry delay so a hostile or
// misconfigured header cannot stall the run.
const maxRetryAfter = 60 * time.Second

// parseRetryAfter reads a Retry-After header value, either delay seconds
// or an HTTP date. Unparseable values yield zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		d := time.Duration(secs) * time.Second
		if d < 0 {
			return 0
		}
		if d > maxRetryAfter {
			return maxRetryAfter
		}
		return d
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}
		if d > maxRetryAfter {
			return maxRetryAfter
		}
		return d
	}
	return 0
}

// IsTransient reports whether err is a retryable request failure.
func IsTransient(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Transient
}
