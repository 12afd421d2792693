// File: internal/concurrency/backoff.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Backoff is the adaptive idle wait shared by every polling loop: it doubles
// from min to max while nothing progresses and resets on progress. It reuses
// a single stopped timer between waits.

package concurrency

import (
	"context"
	"time"
)

// Backoff is not safe for concurrent use.
type Backoff struct {
	min   time.Duration
	max   time.Duration
	cur   time.Duration
	timer *time.Timer
}

// NewBackoff creates a backoff growing from min to max.
func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = time.Microsecond
	}
	if max < min {
		max = min
	}
	t := time.NewTimer(0)
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	return &Backoff{min: min, max: max, cur: min, timer: t}
}

// Reset restarts from the minimum interval.
func (b *Backoff) Reset() { b.cur = b.min }

// Wait sleeps for the current interval, or less if ctx ends or wake fires.
// wake may be nil. It returns ctx.Err() when the context ended.
func (b *Backoff) Wait(ctx context.Context, wake <-chan struct{}) error {
	b.timer.Reset(b.cur)
	select {
	case <-ctx.Done():
		b.stopTimer()
		return ctx.Err()
	case <-wake:
		b.stopTimer()
		b.cur = b.min
		return nil
	case <-b.timer.C:
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
		return nil
	}
}

// Stop releases the timer.
func (b *Backoff) Stop() { b.stopTimer() }

func (b *Backoff) stopTimer() {
	if !b.timer.Stop() {
		select {
		case <-b.timer.C:
		default:
		}
	}
}
