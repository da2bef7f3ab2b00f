package pipeline

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dgallion1/talentvec/internal/embed"
)

// RetryPolicy bounds job-level retries of a whole document run.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
	Max        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: time.Second, Max: 30 * time.Second}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if p.Max > 0 {
		b = retry.WithCappedDuration(p.Max, b)
	}
	b = retry.WithJitterPercent(25, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	return embed.IsRetryable(err)
}

// do runs fn until it succeeds, fails with a non-retryable error, or the
// policy gives up. onRetry sees every retryable failure.
func (p RetryPolicy) do(ctx context.Context, onRetry func(attempt int, err error), fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
		attempt++
		if onRetry != nil {
			onRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
}
