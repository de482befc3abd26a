package repository

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	// MaxAttempts counts the first run; values below 1 mean 1.
	MaxAttempts int
	// Backoff is the base wait; attempt n waits n*Backoff plus up to one
	// Backoff of jitter.
	Backoff time.Duration
	// OnRetry, if set, is called before each re-run.
	OnRetry func(attempt int, err error)
}

// RunWithRetry runs fn in a transaction of s and re-runs the whole body
// while the store reports ErrSerialization. Any other error, including
// business errors returned by fn, ends the loop immediately.
func RunWithRetry(ctx context.Context, s Store, p RetryPolicy, fn func(tx Tx) error) error {
	attempts := max(p.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := s.RunInTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrSerialization) || attempt >= attempts {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if p.Backoff > 0 {
			wait := time.Duration(attempt)*p.Backoff + rand.N(p.Backoff)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}
