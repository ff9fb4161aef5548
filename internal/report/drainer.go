// Package report streams buffered capture records to the connected consumer.
package report

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/netmon/internal/capture"
	"firestige.xyz/netmon/internal/metrics"
	"firestige.xyz/netmon/internal/scheduler"
)

var (
	// ErrStreamFull is returned by a Stream that cannot take more data right
	// now. The drainer keeps the record and retries on the next tick.
	ErrStreamFull = errors.New("report stream full")

	// ErrAlreadyConnected is returned by Connect while a consumer is attached.
	ErrAlreadyConnected = errors.New("report consumer already connected")
)

// DefaultInterval is the drain tick period.
const DefaultInterval = time.Millisecond

// Stream is the consumer side of a report session.
type Stream interface {
	Write(p []byte) (int, error)
	Close() error
}

// State of the drainer.
type State int

const (
	Idle State = iota
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of the report session.
type Status struct {
	Connected  bool   `json:"connected"`
	State      string `json:"state"`
	Buffered   int    `json:"buffered"`
	Overflowed bool   `json:"overflowed"`
}

// Drainer moves records from the capture buffer to the consumer stream, one
// tick at a time. All methods must run on the scheduler goroutine.
type Drainer struct {
	buf      *capture.Buffer
	sched    scheduler.Scheduler
	interval time.Duration
	batch    int

	stream Stream
	ticker scheduler.Ticker
}

var _ capture.Notifier = (*Drainer)(nil)

// NewDrainer creates a drainer that writes up to batch records every interval.
func NewDrainer(buf *capture.Buffer, sched scheduler.Scheduler, interval time.Duration, batch int) *Drainer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batch <= 0 {
		batch = 1
	}
	return &Drainer{
		buf:      buf,
		sched:    sched,
		interval: interval,
		batch:    batch,
	}
}

// Connected reports whether a consumer is attached.
func (d *Drainer) Connected() bool {
	return d.stream != nil
}

// State returns Draining while the drain ticker runs.
func (d *Drainer) State() State {
	if d.ticker != nil {
		return Draining
	}
	return Idle
}

// Status returns a snapshot for the status endpoint.
func (d *Drainer) Status() Status {
	return Status{
		Connected:  d.Connected(),
		State:      d.State().String(),
		Buffered:   d.buf.Len(),
		Overflowed: d.buf.Overflowed(),
	}
}

// Connect attaches a consumer and starts draining if records are waiting.
func (d *Drainer) Connect(s Stream) error {
	if d.stream != nil {
		return ErrAlreadyConnected
	}
	d.stream = s
	metrics.ReportSessionsTotal.WithLabelValues("connected").Inc()
	slog.Info("report consumer connected", "buffered", d.buf.Len())
	d.Notify()
	return nil
}

// Disconnect detaches s after the transport saw it go away. Buffered records
// are kept for the next consumer. Calls for a stream that is no longer
// attached are ignored.
func (d *Drainer) Disconnect(s Stream) {
	if d.stream == nil || d.stream != s {
		return
	}
	d.stopTicker()
	d.stream = nil
	metrics.ReportSessionsTotal.WithLabelValues("disconnected").Inc()
	slog.Info("report consumer disconnected", "retained", d.buf.Len())
}

// Notify implements capture.Notifier: it starts draining when a consumer is
// attached, no drain is running and the buffer is non-empty.
func (d *Drainer) Notify() {
	if d.stream == nil || d.ticker != nil || d.buf.Len() == 0 {
		return
	}
	d.ticker = d.sched.Every(d.interval, d.tick)
}

func (d *Drainer) tick() {
	for i := 0; i < d.batch; i++ {
		r, ok := d.buf.Peek()
		if !ok {
			break
		}

		if r.IsSentinel() {
			d.buf.Pop()
			d.endSession()
			return
		}

		if _, err := d.stream.Write(r[:]); err != nil {
			if errors.Is(err, ErrStreamFull) {
				return
			}
			slog.Warn("report stream write failed", "error", err)
			metrics.ReportSessionsTotal.WithLabelValues("write_error").Inc()
			d.stopTicker()
			d.stream = nil
			return
		}

		d.buf.Pop()
		metrics.ReportRecordsTotal.Inc()
	}

	metrics.CaptureBufferOccupancy.Set(float64(d.buf.Len()))
	if d.buf.Len() == 0 {
		d.stopTicker()
	}
}

// endSession handles a drained sentinel: the only place this side closes the
// consumer stream.
func (d *Drainer) endSession() {
	d.stopTicker()
	s := d.stream
	d.stream = nil
	metrics.ReportSessionsTotal.WithLabelValues("sentinel").Inc()
	metrics.CaptureBufferOccupancy.Set(float64(d.buf.Len()))
	slog.Info("sentinel drained, closing report session", "retained", d.buf.Len())
	if err := s.Close(); err != nil {
		slog.Warn("failed to close report stream", "error", err)
	}
}

func (d *Drainer) stopTicker() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}
