// Package retry runs calls to flaky upstreams with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/dgallion1/ragassist/internal/apperr"
)

const MaxRetries = 3

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// Policy controls Do.
type Policy struct {
	Attempts  int                     // total attempts, MaxRetries when zero
	Backoff   func(int) time.Duration // Backoff when nil
	Retryable func(error) bool        // apperr.IsRetryable when nil
	Log       *slog.Logger            // optional
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = MaxRetries
	}
	if p.Backoff == nil {
		p.Backoff = Backoff
	}
	if p.Retryable == nil {
		p.Retryable = apperr.IsRetryable
	}

	var err error
	for attempt := range p.Attempts {
		err = fn(ctx)
		if err == nil || !p.Retryable(err) || errors.Is(err, context.Canceled) {
			return err
		}
		if attempt == p.Attempts-1 {
			break
		}
		if p.Log != nil {
			p.Log.Warn("retryable error", "attempt", attempt, "error", err)
		}
		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

var transientMarkers = []string{"429", "500", "502", "503", "504", "connection refused", "connection reset", "EOF"}

// Transient reports whether a failed upstream call is worth repeating. It
// accepts RetryableError, deadlines, network errors and the status codes
// langchaingo clients only report as text.
func Transient(err error) bool {
	if apperr.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
