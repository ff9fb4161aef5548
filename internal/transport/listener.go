// Package transport implements the socket side of netmon: single-connection
// TCP listeners, the report stream, the UDP capture socket and the UDP sender.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/tevino/abool"

	"firestige.xyz/netmon/internal/metrics"
)

// Executor runs closures on the event loop. scheduler.Loop implements it.
type Executor interface {
	Post(fn func()) bool
	Do(fn func()) bool
}

// ConnHandler serves one accepted connection and returns when it is done.
type ConnHandler func(ctx context.Context, conn net.Conn)

// SingleListener is a TCP listener that serves at most one connection at a
// time. Connections arriving while one is active are closed immediately.
type SingleListener struct {
	name string
	ln   net.Listener

	busy    *abool.AtomicBool
	stopped *abool.AtomicBool

	mu      sync.Mutex
	current net.Conn
	wg      conc.WaitGroup
}

// Listen binds addr. name labels logs and metrics.
func Listen(name, addr string) (*SingleListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s for %s: %w", addr, name, err)
	}
	return &SingleListener{
		name:    name,
		ln:      ln,
		busy:    abool.New(),
		stopped: abool.New(),
	}, nil
}

// Addr returns the bound address.
func (l *SingleListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called. The
// active connection is closed on shutdown and Serve waits for its handler.
func (l *SingleListener) Serve(ctx context.Context, handle ConnHandler) error {
	slog.Info("listener started", "listener", l.name, "addr", l.ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer l.wg.Wait()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.stopped.IsSet() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("failed to accept connection", "listener", l.name, "error", err)
			continue
		}

		if !l.busy.SetToIf(false, true) {
			metrics.ConnectionsRejectedTotal.WithLabelValues(l.name).Inc()
			slog.Warn("rejecting connection, listener already in use",
				"listener", l.name, "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}

		l.mu.Lock()
		l.current = conn
		l.mu.Unlock()

		l.wg.Go(func() {
			defer l.release(conn)
			slog.Info("connection established", "listener", l.name, "remote", conn.RemoteAddr())
			handle(ctx, conn)
			slog.Info("connection closed", "listener", l.name, "remote", conn.RemoteAddr())
		})
	}
}

func (l *SingleListener) release(conn net.Conn) {
	conn.Close()
	l.mu.Lock()
	if l.current == conn {
		l.current = nil
	}
	l.mu.Unlock()
	l.busy.UnSet()
}

// Close stops accepting and closes the active connection.
func (l *SingleListener) Close() error {
	if !l.stopped.SetToIf(false, true) {
		return nil
	}
	err := l.ln.Close()

	l.mu.Lock()
	if l.current != nil {
		l.current.Close()
	}
	l.mu.Unlock()

	return err
}
