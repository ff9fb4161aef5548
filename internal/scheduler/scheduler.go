// Package scheduler serializes all netmon state mutations onto one event loop
// and provides the periodic tickers that drive draining and transmission.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by TryPost when no task slot is free.
	ErrQueueFull = errors.New("event queue full")
	// ErrClosed is returned by TryPost once the loop has been closed.
	ErrClosed = errors.New("event loop closed")
)

// Ticker is a periodic job created by Scheduler.Every.
type Ticker interface {
	// Stop cancels the ticker. It must be called from the scheduling
	// goroutine; once it returns the callback never runs again.
	Stop()
}

// Scheduler hands out tickers and the current time.
//
// Callbacks passed to Every run on the scheduler's single goroutine, so code
// driven only by a Scheduler needs no locking.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Ticker
}

// Loop is the production Scheduler: a single goroutine that runs posted
// closures one at a time.
type Loop struct {
	tasks chan func()
	done  chan struct{}

	closeOnce sync.Once
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a loop whose task queue holds up to queue pending closures.
func NewLoop(queue int) *Loop {
	if queue <= 0 {
		queue = 1024
	}
	return &Loop{
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-ctx.Done():
			l.Close()
			return
		case <-l.done:
			return
		}
	}
}

// Close stops the loop. Pending tasks are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Post enqueues fn. It blocks while the queue is full and reports false if
// the loop has been closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// TryPost enqueues fn without waiting for a free slot.
func (l *Loop) TryPost(fn func()) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Every implements Scheduler. Firings that arrive while the loop is busy are
// coalesced the same way time.Ticker coalesces them.
func (l *Loop) Every(interval time.Duration, fn func()) Ticker {
	j := newJob(interval, fn)
	go j.run(l)
	return j
}
