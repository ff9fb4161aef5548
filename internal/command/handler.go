package command

import (
	"log/slog"

	"firestige.xyz/netmon/internal/metrics"
	"firestige.xyz/netmon/internal/transmit"
)

// Replies
const (
	ReplyOK    = "OK"
	ReplyError = "ERROR"
)

const (
	lineEnding = "\n"
	// unknownVerb labels metrics for lines without a known verb.
	unknownVerb = "unknown"
)

// Transmitter is the part of transmit.Transmitter the handler drives.
type Transmitter interface {
	Start(p transmit.Params) *transmit.Session
	Stop() bool
}

// Handler turns command lines into transmitter transitions. Handle must run
// on the scheduler goroutine that owns the transmitter.
type Handler struct {
	tx Transmitter
}

// NewHandler creates a new command handler.
func NewHandler(tx Transmitter) *Handler {
	return &Handler{tx: tx}
}

// Handle processes one line and returns the reply, newline included.
func (h *Handler) Handle(line string) string {
	cmd, err := Parse(line)
	if err != nil {
		verb := unknownVerb
		if f := tokens(line)[0]; f == VerbStart || f == VerbStop {
			verb = f
		}
		metrics.ControlCommandsTotal.WithLabelValues(verb, "error").Inc()
		slog.Warn("command rejected", "line", line, "error", err)
		return ReplyError + " " + err.Error() + lineEnding
	}

	switch cmd.Verb {
	case VerbStart:
		h.tx.Start(cmd.Start)
	case VerbStop:
		if !h.tx.Stop() {
			slog.Debug("stop without running session")
		}
	}

	metrics.ControlCommandsTotal.WithLabelValues(cmd.Verb, "ok").Inc()
	return ReplyOK + lineEnding
}
