package render

import (
	"context"
	"time"

	"clipper/internal/services"
)

// RetryPolicy bounds repeated attempts of one operation: attempt count,
// per-attempt timeout, and a fixed delay between attempts. The policy is
// independent of what the attempt does, so it is testable with a fake
// operation.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        time.Duration
	Sleeper        func(time.Duration)
}

// Run invokes attempt until it succeeds, a non-retryable error occurs, the
// attempt budget is exhausted, or the outer context is canceled. The last
// error is returned along with the number of attempts made.
func (p RetryPolicy) Run(ctx context.Context, attempt func(ctx context.Context) error) (attempts int, err error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	sleeper := p.Sleeper
	if sleeper == nil {
		sleeper = time.Sleep
	}

	for attempts = 1; attempts <= max; attempts++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempts - 1, ctxErr
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err = attempt(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return attempts, nil
		}
		if !services.Retryable(err) {
			return attempts, err
		}
		if attempts < max && p.Backoff > 0 {
			sleeper(p.Backoff)
		}
	}
	return max, err
}
