package ingest

import (
	"context"
	"time"
)

// backoff retries fn at most maxRetries extra times with exponential
// delays (base, 2*base, ...) capped at maxDelay. Retries stop early when
// the error is permanent or the context is done.
type backoff struct {
	base       time.Duration
	maxDelay   time.Duration
	maxRetries int
	onRetry    func()
}

func (b backoff) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= b.maxRetries || !retriable(err) {
			return err
		}
		delay := b.base << uint(attempt)
		if delay > b.maxDelay {
			delay = b.maxDelay
		}
		if b.onRetry != nil {
			b.onRetry()
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}
