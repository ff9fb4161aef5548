package transport

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"

	"firestige.xyz/netmon/internal/report"
)

// DefaultStreamQueue is the number of records a report stream holds while
// the consumer is slow.
const DefaultStreamQueue = 4096

// ReportSink receives report consumers. report.Drainer implements it; both
// methods are invoked on the event loop.
type ReportSink interface {
	Connect(s report.Stream) error
	Disconnect(s report.Stream)
}

// ReportServer attaches the consumer connected to the report port to the
// drainer.
type ReportServer struct {
	ln    *SingleListener
	exec  Executor
	sink  ReportSink
	queue int
}

// NewReportServer wraps a bound listener.
func NewReportServer(ln *SingleListener, exec Executor, sink ReportSink, queue int) *ReportServer {
	if queue <= 0 {
		queue = DefaultStreamQueue
	}
	return &ReportServer{ln: ln, exec: exec, sink: sink, queue: queue}
}

// Serve blocks until ctx is cancelled.
func (s *ReportServer) Serve(ctx context.Context) error {
	return s.ln.Serve(ctx, s.handle)
}

func (s *ReportServer) handle(_ context.Context, conn net.Conn) {
	stream := newQueuedStream(conn, s.queue)

	var err error
	if !s.exec.Do(func() { err = s.sink.Connect(stream) }) {
		stream.Close()
		return
	}
	if err != nil {
		slog.Warn("report consumer refused", "remote", conn.RemoteAddr(), "error", err)
		stream.Close()
		return
	}

	// Consumers never send anything; a read returning means they left or the
	// stream was closed after a sentinel.
	io.Copy(io.Discard, conn)

	s.exec.Do(func() { s.sink.Disconnect(stream) })
	stream.Close()
	stream.wait()
}

// queuedStream decouples drain ticks from socket writes. Write never blocks:
// it queues the record or reports report.ErrStreamFull.
type queuedStream struct {
	conn    net.Conn
	queue   chan []byte
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func newQueuedStream(conn net.Conn, size int) *queuedStream {
	s := &queuedStream{
		conn:    conn,
		queue:   make(chan []byte, size),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *queuedStream) Write(p []byte) (int, error) {
	if err := s.failed(); err != nil {
		return 0, err
	}
	select {
	case <-s.closing:
		return 0, net.ErrClosed
	default:
	}

	b := make([]byte, len(p))
	copy(b, p)
	select {
	case s.queue <- b:
		return len(p), nil
	default:
		return 0, report.ErrStreamFull
	}
}

// Close flushes queued records and closes the connection.
func (s *queuedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	return nil
}

func (s *queuedStream) wait() {
	<-s.done
}

func (s *queuedStream) failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *queuedStream) writeLoop() {
	defer close(s.done)
	defer s.conn.Close()

	for {
		select {
		case b := <-s.queue:
			if !s.write(b) {
				return
			}
		case <-s.closing:
			for {
				select {
				case b := <-s.queue:
					if !s.write(b) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *queuedStream) write(b []byte) bool {
	if _, err := s.conn.Write(b); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		slog.Debug("report stream write failed", "remote", s.conn.RemoteAddr(), "error", err)
		return false
	}
	return true
}
