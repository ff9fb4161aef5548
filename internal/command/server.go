package command

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"

	"firestige.xyz/netmon/internal/transport"
)

// Server implements the line-oriented control protocol over TCP. Each line is
// handled on the event loop and answered before the next one is read.
type Server struct {
	ln      *transport.SingleListener
	exec    transport.Executor
	handler *Handler
}

// NewServer wraps a bound single-connection listener.
func NewServer(ln *transport.SingleListener, exec transport.Executor, handler *Handler) *Server {
	return &Server{ln: ln, exec: exec, handler: handler}
}

// Serve blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.ln.Serve(ctx, s.handleConnection)
}

// handleConnection handles a single connection.
func (s *Server) handleConnection(_ context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		var reply string
		if !s.exec.Do(func() { reply = s.handler.Handle(line) }) {
			return
		}

		if _, err := io.WriteString(conn, reply); err != nil {
			slog.Error("failed to send reply", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Debug("control connection error", "error", err)
	}
}
