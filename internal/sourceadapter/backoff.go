package sourceadapter

import (
	"context"
	"errors"
	"time"

	"convoindex/internal/model"
)

const (
	backoffBase    = time.Second
	backoffCap     = 300 * time.Second
	backoffRetries = 5
)

// RateLimited is the signal a fetch primitive surfaces when the
// upstream source asks the caller to back off for wait.
type RateLimited struct {
	Wait time.Duration
}

func (r RateLimited) Error() string { return "rate limited" }

// withBackoff retries fetch up to backoffRetries times whenever it
// returns a RateLimited error, sleeping max(wait, base*2^attempt)
// capped at backoffCap. Retry state is per-call, never
// persisted. On exhaustion it returns model.ErrRateLimited wrapping
// the last signal and whatever partial result fetch last produced.
func withBackoff[T any](ctx context.Context, fetch func() (T, error)) (T, error) {
	var lastErr error
	var zero, last T
	for attempt := 0; attempt < backoffRetries; attempt++ {
		result, err := fetch()
		if err == nil {
			return result, nil
		}
		var rl RateLimited
		if !errors.As(err, &rl) {
			return zero, err
		}
		lastErr = err
		last = result

		wait := rl.Wait
		exp := backoffBase << attempt
		if exp > wait {
			wait = exp
		}
		if wait > backoffCap {
			wait = backoffCap
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}
	return last, errors.Join(model.ErrRateLimited, lastErr)
}
