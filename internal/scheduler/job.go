package scheduler

import (
	"sync"
	"time"
)

// job is a Loop ticker. The timer goroutine only posts firings; the stopped
// flag is read and written on the loop goroutine.
type job struct {
	interval time.Duration
	fn       func()

	stopped  bool
	cancel   chan struct{}
	stopOnce sync.Once
}

func newJob(interval time.Duration, fn func()) *job {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &job{
		interval: interval,
		fn:       fn,
		cancel:   make(chan struct{}),
	}
}

func (j *job) run(l *Loop) {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			fire := func() {
				if !j.stopped {
					j.fn()
				}
			}
			select {
			case l.tasks <- fire:
			case <-j.cancel:
				return
			case <-l.done:
				return
			}
		case <-j.cancel:
			return
		case <-l.done:
			return
		}
	}
}

// Stop implements Ticker.
func (j *job) Stop() {
	j.stopped = true
	j.stopOnce.Do(func() { close(j.cancel) })
}
