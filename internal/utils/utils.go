package utils

import (
	"context"
	"math/rand"
	"time"
)

var sleep = time.Sleep

// WaitFor sleeps for the given duration unless the context is canceled first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Jitter returns a duration randomized around base: base plus up to frac of
// base in either direction. Concurrent retriers use it to avoid waking up in
// lockstep after a shared contention event.
func Jitter(base time.Duration, frac float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if frac <= 0 {
		return base
	}
	if frac > 1 {
		frac = 1
	}

	span := float64(base) * frac
	offset := (rand.Float64()*2 - 1) * span
	d := time.Duration(float64(base) + offset)
	if d < 0 {
		return 0
	}
	return d
}
