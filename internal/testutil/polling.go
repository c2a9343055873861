// Package testutil holds helpers for tests that wait on the runner, the
// follow loop, or other background goroutines.
package testutil

import (
	"context"
	"fmt"
	"time"
)

// Poll checks condition every interval until it holds, ctx is done, or
// timeout passes. The condition is checked once before the first wait.
func Poll(ctx context.Context, condition func() bool, timeout, interval time.Duration) error {
	_, err := WaitForState(ctx, condition, func(ok bool) bool { return ok }, timeout, interval)
	return err
}

// WaitForState polls getter until predicate accepts its value, returning
// that value. On timeout or cancellation it returns the zero value.
//
//	n, err := WaitForState(ctx, r.Ticks,
//		func(n uint64) bool { return n >= 3 },
//		5*time.Second, time.Millisecond)
func WaitForState[T any](ctx context.Context, getter func() T, predicate func(T) bool, timeout, interval time.Duration) (T, error) {
	var zero T
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if v := getter(); predicate(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-deadline.C:
			return zero, fmt.Errorf("timeout waiting for %T state (threshold: %v)", zero, timeout)
		case <-ticker.C:
		}
	}
}
