// Package wait implements the bounded polls used wherever the host completes
// work asynchronously (model loads, replication, overlay loads).
package wait

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the condition did not hold before the deadline.
var ErrTimeout = errors.New("wait timed out")

// DefaultInterval is used when a non-positive interval is passed.
const DefaultInterval = 10 * time.Millisecond

// Until polls cond every interval until it returns true, the timeout elapses
// or ctx is done. cond is always checked at least once.
func Until(ctx context.Context, timeout, interval time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if cond() {
				return nil
			}
			return ErrTimeout
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// For polls fetch until it reports ok, returning the fetched value.
func For[T any](ctx context.Context, timeout, interval time.Duration, fetch func() (T, bool)) (T, error) {
	var out T
	err := Until(ctx, timeout, interval, func() bool {
		v, ok := fetch()
		if ok {
			out = v
		}
		return ok
	})
	return out, err
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
