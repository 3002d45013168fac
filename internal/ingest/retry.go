package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/vidqa/ingestor/internal/ingesterrors"
)

// RetryPolicy bounds in-stage retries. A stage that keeps failing transiently
// after MaxAttempts gives its last error back to the queue, which applies its
// own coarser retry schedule.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries quickly enough to ride out blips without
// holding a worker slot for long.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

func (p RetryPolicy) validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}

	if p.InitialBackoff <= 0 || p.MaxBackoff < p.InitialBackoff {
		return fmt.Errorf("retry policy: invalid backoff range %s..%s", p.InitialBackoff, p.MaxBackoff)
	}

	return nil
}

// retryStage runs fn up to policy.MaxAttempts times, backing off between
// attempts with full jitter. Permanent and fatal errors short-circuit; a rate
// limit's advertised retry-after raises the backoff floor for that wait.
func retryStage(ctx context.Context, policy RetryPolicy, stage string, fn func(ctx context.Context) error) error {
	var lastErr error

	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if ingesterrors.Classify(lastErr) != ingesterrors.KindTransient {
			return lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		wait := jittered(backoff)

		var rateLimited *ingesterrors.RateLimitedError
		if errors.As(lastErr, &rateLimited) && rateLimited.RetryAfter > wait {
			wait = rateLimited.RetryAfter
		}

		slog.Warn("stage attempt failed, backing off",
			"stage", stage,
			"attempt", attempt,
			"backoff", wait,
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, policy.MaxBackoff)
	}

	return lastErr
}

// jittered returns a uniform duration in (0, d], spreading concurrent
// workers apart.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(int64(d))) + 1
}
