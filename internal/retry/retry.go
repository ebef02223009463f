// Package retry provides the single retry policy used across the checkout
// flow: order creation (502-gated), order-key recovery, and the pay-page
// scrape all share it instead of hand-rolling their own loops.
package retry

import (
	"context"
	"time"
)

// Policy describes a bounded retry schedule.
//
// An operation runs once, then up to len(Delays) more times. Before retry
// attempt i the policy sleeps Delays[i]. Retryable gates whether an error
// is worth retrying; a nil Retryable retries every error.
type Policy struct {
	Delays    []time.Duration
	Retryable func(error) bool
}

// Fixed returns a policy with extra attempts at a fixed delay.
func Fixed(extra int, delay time.Duration) Policy {
	delays := make([]time.Duration, extra)
	for i := range delays {
		delays[i] = delay
	}
	return Policy{Delays: delays}
}

// Schedule returns a policy with one extra attempt per given delay.
func Schedule(delays ...time.Duration) Policy {
	return Policy{Delays: delays}
}

// WithRetryable returns a copy of the policy gated by pred.
func (p Policy) WithRetryable(pred func(error) bool) Policy {
	p.Retryable = pred
	return p
}

// Do runs fn under the policy. It returns nil on the first success, the
// last error when attempts are exhausted or the error is not retryable,
// and the context error if cancelled while sleeping between attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= len(p.Delays) {
			return lastErr
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if err := Sleep(ctx, p.Delays[attempt]); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
