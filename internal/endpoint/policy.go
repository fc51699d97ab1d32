package endpoint

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPolicy = errors.New("invalid retry policy")

type PolicyReason int

const (
	PolicyTooLong   PolicyReason = iota // retries would overlap the next heartbeat
	PolicyNegative                      // negative delay or count
	PolicyZeroDelay                     // retries enabled with no delay between them
)

func (r PolicyReason) String() string {
	switch r {
	case PolicyTooLong:
		return "too-long"
	case PolicyNegative:
		return "negative"
	case PolicyZeroDelay:
		return "zero-delay"
	default:
		return "unknown"
	}
}

// PolicyError is returned when a retry policy is rejected.
type PolicyError struct {
	Reason          PolicyReason
	SecondsPerRetry int
	MaxRetries      int
	Interval        int
}

func (e *PolicyError) Error() string {
	switch e.Reason {
	case PolicyTooLong:
		return fmt.Sprintf("%d retries every %ds take longer than the %ds period", e.MaxRetries, e.SecondsPerRetry, e.Interval)
	case PolicyNegative:
		return "negative values are not allowed for retries"
	case PolicyZeroDelay:
		return "seconds per retry must be positive when retries are enabled"
	default:
		return ErrInvalidPolicy.Error()
	}
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrInvalidPolicy
}

// RetryPolicy describes the escalation entered after a failed heartbeat.
// MaxRetries == 0 means the policy is present but disabled.
type RetryPolicy struct {
	SecondsPerRetry int
	MaxRetries      int
}

// NewRetryPolicy validates a policy against the period of its endpoint. The
// whole escalation must finish before the next regular heartbeat.
func NewRetryPolicy(intervalSeconds, secondsPerRetry, maxRetries int) (RetryPolicy, error) {
	perr := &PolicyError{
		SecondsPerRetry: secondsPerRetry,
		MaxRetries:      maxRetries,
		Interval:        intervalSeconds,
	}

	switch {
	case reaches(secondsPerRetry, maxRetries, intervalSeconds):
		perr.Reason = PolicyTooLong
		return RetryPolicy{}, perr
	case secondsPerRetry < 0 || maxRetries < 0:
		perr.Reason = PolicyNegative
		return RetryPolicy{}, perr
	case maxRetries > 0 && secondsPerRetry == 0:
		perr.Reason = PolicyZeroDelay
		return RetryPolicy{}, perr
	}

	return RetryPolicy{SecondsPerRetry: secondsPerRetry, MaxRetries: maxRetries}, nil
}

// reaches reports whether a*b >= limit without overflowing. limit is a
// validated interval and at least 1.
func reaches(a, b, limit int) bool {
	if a == 0 || b == 0 || (a < 0) != (b < 0) {
		return false
	}
	return magnitude(a) > uint64(limit-1)/magnitude(b)
}

func magnitude(v int) uint64 {
	if v < 0 {
		return uint64(-int64(v))
	}
	return uint64(v)
}

func (p RetryPolicy) Enabled() bool {
	return p.MaxRetries > 0
}

// Delay is the time between two retry attempts.
func (p RetryPolicy) Delay(unit time.Duration) time.Duration {
	return time.Duration(p.SecondsPerRetry) * unit
}

func (p RetryPolicy) String() string {
	return fmt.Sprintf("retries: %d every %ds", p.MaxRetries, p.SecondsPerRetry)
}
