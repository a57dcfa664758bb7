// Package retry wraps fallible operations with bounded retries and
// exponential backoff. Classification of retryable versus terminal errors
// is the caller's concern; this package only provides the mechanics.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted marks a failure after all retry attempts were spent. The
// last underlying error is wrapped and reachable via errors.Unwrap.
var ErrExhausted = errors.New("retry attempts exhausted")

// Permanent wraps an error so Do stops retrying immediately. Used for
// failures that cannot be fixed by repeating the operation.
type Permanent struct {
	Err error
}

func (p Permanent) Error() string { return p.Err.Error() }
func (p Permanent) Unwrap() error { return p.Err }

// Policy describes the retry schedule. Attempt N (counted from 1) waits
// BaseDelay * 2^(N-1) before the next try, capped at MaxDelay when set.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the orchestrator's refresh behaviour: three
// attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

// delay returns the wait after the given attempt (counted from 1).
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, the attempts are exhausted, or the context
// is cancelled. On exhaustion the returned error wraps both ErrExhausted
// and the last error from op.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.normalized()

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		var perm Permanent
		if errors.As(last, &perm) {
			return perm.Err
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, last)
}

// Value runs op under the policy and returns its result. It exists so
// callers fetching data do not need a captured variable per call site.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
