package records

import "context"

// RateLimiter is a semaphore bounding concurrent backend calls.
type RateLimiter struct {
	semaphore chan struct{}
}

func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &RateLimiter{semaphore: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or ctx is done.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case rl.semaphore <- struct{}{}:
		return nil
	}
}

func (rl *RateLimiter) Release() {
	select {
	case <-rl.semaphore:
	default:
	}
}

// InFlight is the number of slots currently held.
func (rl *RateLimiter) InFlight() int {
	return len(rl.semaphore)
}
