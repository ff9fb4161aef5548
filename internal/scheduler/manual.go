package scheduler

import (
	"time"
)

// Manual is a virtual-clock Scheduler for tests. Time only moves when Advance
// is called, and tickers fire synchronously inside Advance.
type Manual struct {
	now    time.Time
	seq    uint64
	timers []*manualTicker
}

var _ Scheduler = (*Manual)(nil)

type manualTicker struct {
	m        *Manual
	seq      uint64
	interval time.Duration
	next     time.Time
	fn       func()
	stopped  bool
}

// NewManual creates a virtual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	return m.now
}

// Every implements Scheduler.
func (m *Manual) Every(interval time.Duration, fn func()) Ticker {
	if interval <= 0 {
		interval = time.Millisecond
	}
	m.seq++
	t := &manualTicker{
		m:        m,
		seq:      m.seq,
		interval: interval,
		next:     m.now.Add(interval),
		fn:       fn,
	}
	m.timers = append(m.timers, t)
	return t
}

// Stop implements Ticker.
func (t *manualTicker) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	for i, other := range t.m.timers {
		if other == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			break
		}
	}
}

// Active returns the number of tickers that have not been stopped.
func (m *Manual) Active() int {
	return len(m.timers)
}

// Advance moves the clock forward by d, firing every ticker due on the way in
// time order. Tickers due at the same instant fire in creation order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		t := m.earliest(target)
		if t == nil {
			break
		}
		m.now = t.next
		t.next = t.next.Add(t.interval)
		t.fn()
	}
	m.now = target
}

func (m *Manual) earliest(limit time.Time) *manualTicker {
	var found *manualTicker
	for _, t := range m.timers {
		if t.next.After(limit) {
			continue
		}
		if found == nil || t.next.Before(found.next) || (t.next.Equal(found.next) && t.seq < found.seq) {
			found = t
		}
	}
	return found
}
