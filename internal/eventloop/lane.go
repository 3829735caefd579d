package eventloop

import (
	"log/slog"
	"sync"
	"time"
)

// Lane is the production Loop: one goroutine draining an unbounded FIFO of
// callbacks. Callbacks may post further callbacks without blocking.
type Lane struct {
	mu      sync.Mutex
	pending []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	logger *slog.Logger
}

// NewLane starts a lane goroutine.
func NewLane(logger *slog.Logger) *Lane {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lane{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Post implements Loop. Posting to a closed lane is a no-op.
func (l *Lane) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// After implements Loop.
func (l *Lane) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Go implements Loop.
func (l *Lane) Go(work func() func()) {
	go func() {
		if cont := work(); cont != nil {
			l.Post(cont)
		}
	}()
}

// Now implements Loop.
func (l *Lane) Now() time.Time {
	return time.Now()
}

// Close stops the lane after the callback currently running, if any,
// returns. Pending callbacks are dropped.
func (l *Lane) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.pending = nil
		l.mu.Unlock()
		close(l.done)
	})
	l.wg.Wait()
}

func (l *Lane) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if l.stopped || len(l.pending) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.pending[0]
			l.pending[0] = nil
			l.pending = l.pending[1:]
			l.mu.Unlock()

			l.call(fn)
		}
	}
}

func (l *Lane) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop callback panicked", "panic", r)
		}
	}()
	fn()
}
