package diagram

import (
	"context"
	"time"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/ctxlog"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff returns the delay after the given zero-based attempt: base doubled
// per attempt and capped at max.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// retry calls fn up to attempts times. Only errors marked transient are
// retried; anything else is returned at once. It reports how many attempts
// ran.
func retry(ctx context.Context, attempts int, base, max time.Duration, sleep Sleeper, fn func(ctx context.Context) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	log := ctxlog.FromContext(ctx)
	var last error
	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return i + 1, nil
		}
		if !apperr.IsTransient(err) {
			return i + 1, err
		}
		last = err
		if ctx.Err() != nil {
			return i + 1, ctx.Err()
		}
		if i == attempts-1 {
			break
		}
		d := backoff(i, base, max)
		log.Warn("diagram: attempt failed, retrying", "attempt", i+1, "of", attempts, "backoff", d, "err", err)
		if err := sleep(ctx, d); err != nil {
			return i + 1, err
		}
	}
	return attempts, last
}
