// Package transport builds the HTTP clients used to talk to the web
// protocol: a cookie jar shared by every endpoint and a round-tripper that
// retries connection-level failures.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Options configures NewClient.
type Options struct {
	Jar       http.CookieJar
	Policy    *RetryPolicy
	UserAgent string
	// Timeout bounds each attempt until its response headers arrive.
	// Retry delays and body reads are not counted against it.
	Timeout time.Duration
	// Base is the underlying round-tripper. Defaults to http.DefaultTransport.
	Base http.RoundTripper
}

// NewClient returns an *http.Client with cookie affinity and transient-error
// retries.
func NewClient(opts Options) *http.Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	policy := opts.Policy
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Jar: opts.Jar,
		Transport: &retryTransport{
			base:      base,
			policy:    policy,
			userAgent: opts.UserAgent,
			timeout:   timeout,
		},
	}
}

// retryTransport replays a request only when the round trip failed before
// a response was received. Any response, whatever its status, is returned
// to the caller as is.
type retryTransport struct {
	base      http.RoundTripper
	policy    *RetryPolicy
	userAgent string
	timeout   time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	attempt := 0
	err = t.policy.Execute(req.Context(), func() error {
		attempt++
		r, err := t.try(req, body)
		if err != nil {
			if IsTransient(err) {
				slog.Warn("transient network error", "url", req.URL.Redacted(), "attempt", attempt, "error", err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// try runs one attempt. The attempt is cancelled if no response headers
// arrive within the timeout; once they do, the returned body owns the
// attempt's context until it is closed.
func (t *retryTransport) try(req *http.Request, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	try := req.Clone(ctx)
	if body != nil {
		try.Body = io.NopCloser(bytes.NewReader(body))
	}

	timer := time.AfterFunc(t.timeout, cancel)
	resp, err := t.base.RoundTrip(try)
	if !timer.Stop() {
		if resp != nil {
			resp.Body.Close()
		}
		cancel()
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s %s: no response after %s: %w", req.Method, req.URL.Redacted(), t.timeout, os.ErrDeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the attempt's context when the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// bufferBody reads the request body once so it can be replayed.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return data, nil
}
