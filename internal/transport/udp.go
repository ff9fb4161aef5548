package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/net/ipv4"

	"firestige.xyz/netmon/internal/capture"
	"firestige.xyz/netmon/internal/metrics"
	"firestige.xyz/netmon/internal/scheduler"
)

// maxDatagram is large enough for any UDP payload.
const maxDatagram = 65536

// Ingester consumes captured payloads on the event loop.
type Ingester interface {
	Handle(payload []byte) (capture.PushResult, error)
}

// Poster queues closures on the event loop without blocking.
// scheduler.Loop implements it.
type Poster interface {
	TryPost(fn func()) error
}

// Receiver reads datagrams from a UDP socket and posts them to the ingest
// stage. Reading never waits for the event loop: when its queue is full the
// datagram is dropped and counted.
type Receiver struct {
	conn   net.PacketConn
	exec   Poster
	ingest Ingester
}

// ListenUDP binds the capture socket.
func ListenUDP(addr string, exec Poster, ingest Ingester) (*Receiver, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp %s: %w", addr, err)
	}
	return &Receiver{conn: conn, exec: exec, ingest: ingest}, nil
}

// Addr returns the bound address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Serve reads until ctx is cancelled.
func (r *Receiver) Serve(ctx context.Context) error {
	slog.Info("udp receiver started", "addr", r.conn.LocalAddr().String())
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	saturated := false
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("udp read failed", "error", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		err = r.exec.TryPost(func() {
			if _, err := r.ingest.Handle(payload); err != nil {
				slog.Warn("capture ingest error", "from", from.String(), "error", err)
			}
		})
		switch {
		case err == nil:
			saturated = false
		case errors.Is(err, scheduler.ErrQueueFull):
			metrics.CaptureDatagramsTotal.WithLabelValues("queue_full").Inc()
			if !saturated {
				slog.Warn("event queue full, dropping datagrams", "addr", r.conn.LocalAddr().String())
				saturated = true
			}
		default:
			return nil
		}
	}
}

// Close closes the socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// UDPSender sends transmit datagrams from one unconnected IPv4 socket. It is
// used from the event loop only.
type UDPSender struct {
	conn net.PacketConn
	pc   *ipv4.PacketConn

	ttl      int
	mttl     int
	lastDest string
	lastAddr *net.UDPAddr
}

// NewUDPSender binds the sending socket; bind may be empty for any address.
func NewUDPSender(bind string) (*UDPSender, error) {
	if bind == "" {
		bind = "0.0.0.0:0"
	}
	conn, err := net.ListenPacket("udp4", bind)
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp sender %s: %w", bind, err)
	}
	return &UDPSender{
		conn: conn,
		pc:   ipv4.NewPacketConn(conn),
		ttl:  -1,
		mttl: -1,
	}, nil
}

// Send writes payload to dest with the given TTL. For multicast destinations
// the multicast TTL is set as well.
func (s *UDPSender) Send(dest string, ttl int, payload []byte) error {
	addr, err := s.resolve(dest)
	if err != nil {
		return err
	}

	if ttl != s.ttl {
		if err := s.pc.SetTTL(ttl); err != nil {
			return fmt.Errorf("failed to set ttl %d: %w", ttl, err)
		}
		s.ttl = ttl
	}
	if addr.IP.IsMulticast() && ttl != s.mttl {
		if err := s.pc.SetMulticastTTL(ttl); err != nil {
			return fmt.Errorf("failed to set multicast ttl %d: %w", ttl, err)
		}
		s.mttl = ttl
	}

	if _, err := s.conn.WriteTo(payload, addr); err != nil {
		return fmt.Errorf("failed to send to %s: %w", dest, err)
	}
	return nil
}

func (s *UDPSender) resolve(dest string) (*net.UDPAddr, error) {
	if dest == s.lastDest && s.lastAddr != nil {
		return s.lastAddr, nil
	}
	addr, err := net.ResolveUDPAddr("udp4", dest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dest, err)
	}
	s.lastDest = dest
	s.lastAddr = addr
	return addr, nil
}

// Close closes the socket.
func (s *UDPSender) Close() error {
	return s.conn.Close()
}
