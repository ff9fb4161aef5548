package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/netmon/internal/metrics"
)

// ErrShortDatagram is returned for datagrams smaller than HeaderSize.
var ErrShortDatagram = errors.New("datagram shorter than capture header")

// Clock supplies receive timestamps.
type Clock interface {
	Now() time.Time
}

// Notifier is told when the buffer gained a record. The report drainer
// implements it.
type Notifier interface {
	Notify()
}

// Ingest turns datagrams into records and stores them in a Buffer.
type Ingest struct {
	buf    *Buffer
	clock  Clock
	notify Notifier
}

// NewIngest creates an ingest stage. notify may be nil.
func NewIngest(buf *Buffer, clock Clock, notify Notifier) *Ingest {
	return &Ingest{buf: buf, clock: clock, notify: notify}
}

// Handle captures one datagram payload. Capacity drops are not errors: they
// are counted, and logged once per overflow episode.
func (in *Ingest) Handle(payload []byte) (PushResult, error) {
	if len(payload) < HeaderSize {
		metrics.CaptureDatagramsTotal.WithLabelValues("short").Inc()
		return Dropped, fmt.Errorf("%w: %d bytes", ErrShortDatagram, len(payload))
	}

	var r Record
	copy(r[:HeaderSize], payload[:HeaderSize])
	binary.BigEndian.PutUint32(r[HeaderSize:], Timestamp(in.clock.Now()))

	wasOverflowed := in.buf.Overflowed()
	res := in.buf.PushWithOverflowRecovery(r)
	metrics.CaptureBufferOccupancy.Set(float64(in.buf.Len()))

	switch {
	case res == Dropped:
		metrics.CaptureDatagramsTotal.WithLabelValues("dropped").Inc()
		if !wasOverflowed && in.buf.Overflowed() {
			metrics.CaptureOverflowsTotal.Inc()
			slog.Warn("capture buffer overflow, dropping datagrams",
				"capacity", in.buf.Cap())
		}
		return Dropped, nil
	case wasOverflowed:
		slog.Info("capture resumed after overflow, sentinel inserted",
			"occupancy", in.buf.Len())
	}

	metrics.CaptureDatagramsTotal.WithLabelValues("accepted").Inc()
	if in.notify != nil {
		in.notify.Notify()
	}
	return Accepted, nil
}
