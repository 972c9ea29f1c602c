// Package httpclient implements the retrying, timeout-bound HTTP core
// shared by both backend adapters (spec.md §4.2). Non-streaming calls get
// a bounded-timeout client with automatic retry on transient failures;
// streaming calls use a separate client with no client-level deadline
// (cancellation is by context only), matching the teacher's
// modules/provider/openai_compatible pattern of keeping a response-header
// timeout on the transport instead of a blanket client timeout that would
// kill a long-lived SSE/NDJSON body.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Timeouts bundles the three deadlines spec.md §4.2 distinguishes, plus
// the retry budget for non-streaming requests (MODEL_REQUEST_RETRIES,
// spec.md §6).
type Timeouts struct {
	Request     time.Duration // default 30s
	StatusCheck time.Duration // default 5s
	HealthProbe time.Duration // default 3-5s
	MaxRetries  int           // default 3
}

func (t Timeouts) defaults() Timeouts {
	if t.Request == 0 {
		t.Request = 30 * time.Second
	}
	if t.StatusCheck == 0 {
		t.StatusCheck = 5 * time.Second
	}
	if t.HealthProbe == 0 {
		t.HealthProbe = 5 * time.Second
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}
	return t
}

// Client wraps two *http.Client instances: one timeout-bound for ordinary
// requests, one with only a response-header timeout for streaming bodies.
type Client struct {
	timeouts Timeouts
	plain    *http.Client
	stream   *http.Client
	userAgent string
}

// New builds a Client with the given timeouts and identifying user agent
// (spec.md §3 Adapter: "identifying user-agent").
func New(timeouts Timeouts, userAgent string) *Client {
	timeouts = timeouts.defaults()
	return &Client{
		timeouts: timeouts,
		plain: &http.Client{
			Timeout: timeouts.Request,
		},
		stream: &http.Client{
			// No blanket timeout: a streaming body may legitimately stay
			// open far longer than Timeouts.Request. The caller's context
			// deadline/cancellation is the only thing that tears it down.
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeouts.Request,
				TLSHandshakeTimeout:   10 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

// Do performs a non-streaming JSON request with retry on transient
// failures. 4xx is never retried; retries are attempted for connection
// errors and 5xx responses, per spec.md §4.2.
func (c *Client) Do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	return c.DoWithHeaders(ctx, method, url, body, nil)
}

// DoWithHeaders is Do with caller-supplied extra headers (e.g. an
// Authorization bearer token) applied to every attempt.
func (c *Client) DoWithHeaders(ctx context.Context, method, url string, body []byte, extra http.Header) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.timeouts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("httpclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		for k, vs := range extra {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.plain.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if isRetryableNetErr(err) {
				continue
			}
			return nil, err
		}

		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			lastErr = fmt.Errorf("httpclient: upstream status %d", resp.StatusCode)
			_ = resp.Body.Close()
			continue
		}

		return resp, nil
	}
	return nil, lastErr
}

// OpenStream issues a request and returns the raw, unread response for the
// caller to frame as SSE or NDJSON. Streaming requests are never retried
// (spec.md §4.2: "Retries are disabled when streaming").
func (c *Client) OpenStream(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	return c.OpenStreamWithHeaders(ctx, method, url, body, nil)
}

// OpenStreamWithHeaders is OpenStream with caller-supplied extra headers.
func (c *Client) OpenStreamWithHeaders(ctx context.Context, method, url string, body []byte, extra http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

// Success reports whether status is in the [200, 300) success range
// (spec.md §4.2 "Success predicate").
func Success(status int) bool {
	return status >= 200 && status < 300
}

func isRetryableNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
