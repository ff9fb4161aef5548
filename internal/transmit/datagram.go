package transmit

import "encoding/binary"

const (
	// MinDatagramSize is the size of the id/frame/timestamp header.
	MinDatagramSize = 12
	// MaxDatagramSize is the largest size a session may request.
	MaxDatagramSize = 65536
	// MarkerSize is the size of the all-zero termination marker.
	MarkerSize = 12
)

// BuildDatagram returns a zero-filled datagram of size bytes with the header
// id, frame and send timestamp written big-endian. size must be at least
// MinDatagramSize.
func BuildDatagram(size int, id, frame, sent uint32) []byte {
	b := make([]byte, size)
	binary.BigEndian.PutUint32(b[0:4], id)
	binary.BigEndian.PutUint32(b[4:8], frame)
	binary.BigEndian.PutUint32(b[8:12], sent)
	return b
}

// TerminationMarker returns the datagram sent when a session ends.
func TerminationMarker() []byte {
	return make([]byte, MarkerSize)
}
