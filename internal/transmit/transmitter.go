// Package transmit generates the sequenced, timestamped UDP datagram stream of
// a transmit session.
package transmit

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/netmon/internal/capture"
	"firestige.xyz/netmon/internal/metrics"
	"firestige.xyz/netmon/internal/scheduler"
)

// Sender puts one datagram on the wire.
type Sender interface {
	Send(dest string, ttl int, payload []byte) error
}

// Params configure a session. They are validated by the command parser.
type Params struct {
	Address  string
	Port     int
	ID       uint32
	Count    uint32 // 0 = until stopped
	Size     int
	Interval time.Duration
	TTL      int
}

// Endpoint returns the destination as host:port.
func (p Params) Endpoint() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// Session is the running state of one transmit session.
type Session struct {
	UUID      uuid.UUID
	Params    Params
	Frame     uint32
	Remaining uint32

	ticker scheduler.Ticker
}

// Status is a point-in-time view of the transmitter.
type Status struct {
	Running   bool   `json:"running"`
	Session   string `json:"session,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	ID        uint32 `json:"id,omitempty"`
	Frame     uint32 `json:"frame,omitempty"`
	Remaining uint32 `json:"remaining,omitempty"`
}

// Transmitter owns at most one running Session. All methods must run on the
// scheduler goroutine.
type Transmitter struct {
	sched  scheduler.Scheduler
	sender Sender

	session *Session
}

// New creates a transmitter.
func New(sched scheduler.Scheduler, sender Sender) *Transmitter {
	return &Transmitter{sched: sched, sender: sender}
}

// Running reports whether a session is active.
func (t *Transmitter) Running() bool {
	return t.session != nil
}

// Session returns the running session, or nil.
func (t *Transmitter) Session() *Session {
	return t.session
}

// Status returns a snapshot for the status endpoint.
func (t *Transmitter) Status() Status {
	s := t.session
	if s == nil {
		return Status{}
	}
	return Status{
		Running:   true,
		Session:   s.UUID.String(),
		Endpoint:  s.Params.Endpoint(),
		ID:        s.Params.ID,
		Frame:     s.Frame,
		Remaining: s.Remaining,
	}
}

// Start begins a new session. A session that is still running is stopped
// first, including its termination marker.
func (t *Transmitter) Start(p Params) *Session {
	if t.session != nil {
		slog.Info("new start supersedes running transmit session", "session", t.session.UUID)
		metrics.TransmitSessionsTotal.WithLabelValues("superseded").Inc()
		t.finish()
	}

	s := &Session{
		UUID:      uuid.New(),
		Params:    p,
		Remaining: p.Count,
	}
	s.ticker = t.sched.Every(p.Interval, t.tick)
	t.session = s

	metrics.TransmitSessionsTotal.WithLabelValues("started").Inc()
	metrics.TransmitRunning.Set(1)

	count := "infinite"
	if p.Count > 0 {
		count = strconv.FormatUint(uint64(p.Count), 10)
	}
	slog.Info("transmit session started",
		"session", s.UUID,
		"count", count,
		"id", p.ID,
		"bytes", p.Size,
		"endpoint", p.Endpoint(),
		"interval", p.Interval,
		"ttl", p.TTL,
	)
	return s
}

// Stop ends the running session and sends its termination marker. It
// reports whether a session was running.
func (t *Transmitter) Stop() bool {
	if t.session == nil {
		return false
	}
	metrics.TransmitSessionsTotal.WithLabelValues("stopped").Inc()
	t.finish()
	return true
}

func (t *Transmitter) tick() {
	s := t.session
	if s == nil {
		return
	}

	p := s.Params
	payload := BuildDatagram(p.Size, p.ID, s.Frame, capture.Timestamp(t.sched.Now()))
	t.send(p, payload, "data")
	s.Frame++

	if p.Count == 0 {
		return
	}
	s.Remaining--
	if s.Remaining == 0 {
		metrics.TransmitSessionsTotal.WithLabelValues("completed").Inc()
		t.finish()
	}
}

// finish stops the ticker, clears the session and sends the marker.
func (t *Transmitter) finish() {
	s := t.session
	s.ticker.Stop()
	t.session = nil
	metrics.TransmitRunning.Set(0)

	t.send(s.Params, TerminationMarker(), "marker")
	slog.Info("transmit session ended", "session", s.UUID, "frames", s.Frame)
}

func (t *Transmitter) send(p Params, payload []byte, kind string) {
	if err := t.sender.Send(p.Endpoint(), p.TTL, payload); err != nil {
		metrics.TransmitErrorsTotal.Inc()
		slog.Warn("datagram send failed", "endpoint", p.Endpoint(), "kind", kind, "error", err)
		return
	}
	metrics.TransmitDatagramsTotal.WithLabelValues(kind).Inc()
}
