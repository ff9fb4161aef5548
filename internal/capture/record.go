// Package capture holds the receiver side of netmon: the fixed 16-byte capture
// record, the bounded ring buffer with its overflow protocol, and the ingest
// step that turns datagrams into records.
package capture

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// RecordSize is the wire size of a capture record.
	RecordSize = 16
	// HeaderSize is the number of leading datagram bytes copied into a record.
	HeaderSize = 12
)

// Record is one capture: id, frame and origin timestamp copied from the
// datagram header, followed by the local receive timestamp. All fields are
// big-endian.
//
// The all-zero record is the Sentinel. A genuine capture with every field zero
// would be misread as the end of the report session; ids are non-zero so this
// requires an id-0 datagram at a zero receive timestamp.
type Record [RecordSize]byte

// Sentinel marks the end of a report session.
var Sentinel Record

// NewRecord builds a record from its four fields.
func NewRecord(id, frame, sent, received uint32) Record {
	var r Record
	binary.BigEndian.PutUint32(r[0:4], id)
	binary.BigEndian.PutUint32(r[4:8], frame)
	binary.BigEndian.PutUint32(r[8:12], sent)
	binary.BigEndian.PutUint32(r[12:16], received)
	return r
}

// ParseRecord decodes a record from the first RecordSize bytes of b.
func ParseRecord(b []byte) (Record, error) {
	var r Record
	if len(b) < RecordSize {
		return r, fmt.Errorf("capture record needs %d bytes, got %d", RecordSize, len(b))
	}
	copy(r[:], b[:RecordSize])
	return r, nil
}

// ID returns the session id copied from the datagram.
func (r Record) ID() uint32 { return binary.BigEndian.Uint32(r[0:4]) }

// Frame returns the frame number copied from the datagram.
func (r Record) Frame() uint32 { return binary.BigEndian.Uint32(r[4:8]) }

// Sent returns the transmitter's send timestamp.
func (r Record) Sent() uint32 { return binary.BigEndian.Uint32(r[8:12]) }

// Received returns the local receive timestamp.
func (r Record) Received() uint32 { return binary.BigEndian.Uint32(r[12:16]) }

// IsSentinel reports whether all 16 bytes are zero.
func (r Record) IsSentinel() bool {
	return r == Sentinel
}

// Bytes returns the wire form of r.
func (r Record) Bytes() []byte {
	b := make([]byte, RecordSize)
	copy(b, r[:])
	return b
}

// String renders r the way the controller prints it.
func (r Record) String() string {
	return fmt.Sprintf("id: %d, frame %d, tx %d, rx %d", r.ID(), r.Frame(), r.Sent(), r.Received())
}

// Timestamp returns the low 32 bits of t in microseconds since the epoch, the
// form used for both send and receive stamps.
func Timestamp(t time.Time) uint32 {
	return uint32(t.UnixMicro())
}
