package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"
)

// RetryPolicy retries transport-level failures with a fixed delay.
// Protocol-level failures arrive as successful HTTP responses and are
// never seen by the policy.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns the policy the web client runs with:
// 10 retries after the first attempt, 10s apart.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 11,
		Delay:       10 * time.Second,
	}
}

// ShouldRetry returns true if err is transient and another attempt is allowed.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsTransient(err)
}

// transientErrnos is the whitelist of socket-level failures worth retrying.
var transientErrnos = []syscall.Errno{
	syscall.ETIMEDOUT,
	syscall.ECONNRESET,
	syscall.EADDRINUSE,
	syscall.ECONNREFUSED,
	syscall.EPIPE,
	syscall.ENETUNREACH,
}

// IsTransient reports whether err is a connection-level failure: a
// whitelisted errno, a DNS failure, or a network timeout. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Execute runs fn until it succeeds, fails permanently, attempts run out
// or ctx is done. It returns the last error seen.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	attempts := max(p.MaxAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(p.Delay):
		}
	}
	return lastErr
}
