package archive

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"cruisesync-service/internal/domain/repository"
)

// Policy is an explicit retry state machine for archive I/O: attempt count
// plus exponential backoff with jitter, consumed by the pool and by any
// caller doing retryable downloads.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the archive's observed recovery behavior
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn until it succeeds, fails terminally, or attempts run out.
// The last error is returned after exhaustion.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy().BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy().MaxDelay
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt < p.MaxAttempts {
			if err := sleepBackoff(ctx, attempt, p.BaseDelay, p.MaxDelay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepBackoff(ctx context.Context, attempt int, base, max time.Duration) error {
	sleep := base * time.Duration(1<<(attempt-1))
	if sleep > max {
		sleep = max
	}
	// jitter 0..400ms
	sleep += time.Duration(rand.Intn(400)) * time.Millisecond

	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTransient reports whether an archive error is worth retrying.
// Not-found and an open circuit are terminal; cancellation propagates.
// Unknown I/O errors default to retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, repository.ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	// Timeouts, resets, broken pipes, handshake failures: everything else
	// coming out of the archive layer is I/O and worth another attempt.
	return true
}
