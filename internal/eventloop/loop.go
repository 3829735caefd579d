// Package eventloop provides the cooperative, single-goroutine scheduling
// model the dialogue engine runs on. All state owned by a loop is mutated from
// callbacks executed by that loop, one at a time, in FIFO order.
package eventloop

import (
	"context"
	"time"
)

// Timer is a pending delayed callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Loop schedules callbacks onto a single logical thread of execution.
type Loop interface {
	// Post enqueues fn to run on the loop.
	Post(fn func())
	// After runs fn on the loop once d has elapsed.
	After(d time.Duration, fn func()) Timer
	// Go runs work off the loop and posts the continuation it returns, if
	// any, back onto the loop.
	Go(work func() func())
	// Now returns the loop's notion of the current time.
	Now() time.Time
}

// Do runs fn on the loop and waits for it to finish or for ctx to end.
func Do(ctx context.Context, l Loop, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
