package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode selects how a connect sequence retries.
type Mode string

const (
	// Bounded makes up to MaxAttempts attempts, then yields the cycle.
	Bounded Mode = "bounded"
	// Unbounded retries until success or context cancellation.
	Unbounded Mode = "unbounded"
)

// RetryPolicy controls one connect sequence.
type RetryPolicy struct {
	Mode Mode

	// MaxAttempts is the number of attempts per cycle in Bounded mode.
	MaxAttempts int

	// Interval is the delay between attempts.
	Interval time.Duration

	// MaxInterval caps delay growth. It is required when Multiplier > 1;
	// an unvalidated policy without it is capped at fallbackMaxInterval.
	MaxInterval time.Duration

	// Multiplier scales the delay after each failed attempt. Values <= 1
	// keep the delay fixed.
	Multiplier float64
}

const fallbackMaxInterval = 5 * time.Minute

// DefaultTransportPolicy is three attempts two seconds apart.
func DefaultTransportPolicy() RetryPolicy {
	return RetryPolicy{
		Mode:        Bounded,
		MaxAttempts: 3,
		Interval:    2 * time.Second,
	}
}

// DefaultBusPolicy retries forever, backing off from 2s to 60s.
func DefaultBusPolicy() RetryPolicy {
	return RetryPolicy{
		Mode:        Unbounded,
		Interval:    2 * time.Second,
		MaxInterval: 60 * time.Second,
		Multiplier:  2.0,
	}
}

// Validate reports a policy that cannot be executed.
func (p RetryPolicy) Validate() error {
	switch p.Mode {
	case Bounded:
		if p.MaxAttempts < 1 {
			return fmt.Errorf("bounded policy needs max_attempts >= 1, got %d", p.MaxAttempts)
		}
	case Unbounded:
	default:
		return fmt.Errorf("unknown retry mode %q (valid: bounded, unbounded)", p.Mode)
	}
	if p.Interval < 0 {
		return fmt.Errorf("retry interval must not be negative, got %v", p.Interval)
	}
	if p.Multiplier > 1 && p.MaxInterval <= 0 {
		return fmt.Errorf("multiplier %g needs a positive max_interval", p.Multiplier)
	}
	return nil
}

// Sleeper waits between attempts. It returns false if ctx ended first.
type Sleeper func(ctx context.Context, d time.Duration) bool

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// retryContext is the state of one connect sequence. It is discarded when
// the sequence ends.
type retryContext struct {
	attempt int
	delay   time.Duration
}

// retry runs attempt according to p. It returns the number of attempts made
// and the last error, or nil on success.
func retry(ctx context.Context, p RetryPolicy, sleep Sleeper, attempt func(ctx context.Context, n int) error) (int, error) {
	rc := retryContext{delay: p.Interval}
	for {
		rc.attempt++
		err := attempt(ctx, rc.attempt)
		if err == nil {
			return rc.attempt, nil
		}
		var se stopError
		if errors.As(err, &se) {
			return rc.attempt, se.err
		}
		if p.Mode == Bounded && rc.attempt >= p.MaxAttempts {
			return rc.attempt, err
		}
		if !sleep(ctx, rc.delay) {
			return rc.attempt, fmt.Errorf("%w (retry cancelled: %v)", err, ctx.Err())
		}
		rc.delay = p.next(rc.delay)
	}
}

// stopError ends a connect sequence regardless of the policy.
type stopError struct{ err error }

func (e stopError) Error() string { return e.err.Error() }
func (e stopError) Unwrap() error { return e.err }

func stop(err error) error { return stopError{err: err} }

func (p RetryPolicy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	ceiling := p.MaxInterval
	if ceiling <= 0 {
		ceiling = fallbackMaxInterval
	}
	// compare in float64 so a long run of attempts cannot overflow
	grown := float64(d) * p.Multiplier
	if !(grown < float64(ceiling)) {
		return ceiling
	}
	return time.Duration(grown)
}
