// Package retry holds the backoff policy the durable engine applies between
// attempts, and its error classification
package retry

import (
	"context"
	stderrs "errors"
	"math"
	"slices"
	"time"

	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
)

// Policy is an exponential backoff schedule with an attempt ceiling
type Policy struct {
	Initial     time.Duration
	Coefficient float64
	Max         time.Duration
	// Attempts is the total number of tries, including the first
	Attempts int
	// NonRetryable lists the categories that fail on first sight.
	// Nil falls back to perr.Terminal
	NonRetryable []perr.ErrorCode
}

// DefaultNonRetryable is the category set Default carries
func DefaultNonRetryable() []perr.ErrorCode {
	return []perr.ErrorCode{
		perr.ErrorCodeConfig,
		perr.ErrorCodeInvalidArgument,
		perr.ErrorCodeValidation,
		perr.ErrorCodeNotFound,
		perr.ErrorCodeUnauthorized,
		perr.ErrorCodeForbidden,
		perr.ErrorCodePanic,
	}
}

// Default is 1s doubling to a 5m cap, 5 attempts
func Default() Policy {
	return Policy{
		Initial:      time.Second,
		Coefficient:  2.0,
		Max:          5 * time.Minute,
		Attempts:     5,
		NonRetryable: DefaultNonRetryable(),
	}
}

// FromConfig reads RETRY_INITIAL, RETRY_COEFFICIENT, RETRY_MAX and RETRY_ATTEMPTS over Default
func FromConfig(cfg config.Conf) Policy {
	d := Default()
	c := cfg.Prefix("RETRY_")
	return Policy{
		Initial:      c.MayDuration("INITIAL", d.Initial),
		Coefficient:  c.MayFloat64("COEFFICIENT", d.Coefficient),
		Max:          c.MayDuration("MAX", d.Max),
		Attempts:     c.MayInt("ATTEMPTS", d.Attempts),
		NonRetryable: d.NonRetryable,
	}
}

// Once is a single attempt with no backoff
func Once() Policy { return Policy{Attempts: 1} }

// Backoff returns the wait after the given failed attempt (1-based)
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.Initial <= 0 {
		return 0
	}
	coef := p.Coefficient
	if coef < 1 {
		coef = 1
	}
	d := float64(p.Initial) * math.Pow(coef, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

// MaxAttempts returns Attempts, at least 1
func (p Policy) MaxAttempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// Retryable classifies err by category: config, validation, auth and
// not-found failures are terminal, as is cancellation
func Retryable(err error) bool { return perr.Retryable(err) }

// Retryable classifies err against the policy's NonRetryable set.
// Cancellation is always terminal; errors without a category retry
func (p Policy) Retryable(err error) bool {
	if p.NonRetryable == nil {
		return Retryable(err)
	}
	if err == nil || stderrs.Is(err, context.Canceled) {
		return false
	}
	e, ok := perr.As(err)
	if !ok {
		return true
	}
	return !slices.Contains(p.NonRetryable, e.Code())
}

// Sleep waits d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
