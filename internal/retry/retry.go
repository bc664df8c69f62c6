// Package retry provides bounded retry with backoff for transient I/O
// failures: event store lookbacks and push delivery.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig allows a single retry with short backoff.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     1,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
	}
}

// transient substrings cover driver and transport errors that do not surface
// typed errors: sqlite contention, gateway-level HTTP failures, TCP resets.
var transient = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporary",
	"busy",
	"locked",
	"502",
	"503",
	"504",
	"too many requests",
}

// IsRetryable reports whether the error looks transient. Context cancellation
// is permanent; a deadline expiry is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transient {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Do runs fn with the default config.
func Do(ctx context.Context, operation string, fn func() error) error {
	return WithConfig(ctx, DefaultConfig(), operation, fn)
}

// WithConfig runs fn, retrying transient failures with backoff until the
// retries are spent or the context ends. The last error is returned.
func WithConfig(ctx context.Context, cfg Config, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				log.Info().Str("operation", operation).Int("attempt", attempt+1).Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= cfg.MaxRetries {
			return err
		}

		backoff := backoffFor(cfg, attempt)
		log.Warn().Err(err).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// backoffFor returns the exponential backoff for an attempt, jittered ±25%.
func backoffFor(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff)
}
