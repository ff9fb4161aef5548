package capture

import (
	"encoding/binary"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify() { c.n++ }

func datagram(id, frame, sent uint32, size int) []byte {
	b := make([]byte, size)
	binary.BigEndian.PutUint32(b[0:4], id)
	binary.BigEndian.PutUint32(b[4:8], frame)
	binary.BigEndian.PutUint32(b[8:12], sent)
	return b
}

func TestIngestBuildsRecord(t *testing.T) {
	now := time.UnixMicro(0x1_2345_6789)
	b := newTestBuffer(t, 8, 1)
	n := &countingNotifier{}
	in := NewIngest(b, fixedClock{now}, n)

	res, err := in.Handle(datagram(42, 3, 0xdeadbeef, 64))
	require.NoError(t, err)
	assert.Equal(t, Accepted, res)
	assert.Equal(t, 1, n.n)

	r, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, uint32(42), r.ID())
	assert.Equal(t, uint32(3), r.Frame())
	assert.Equal(t, uint32(0xdeadbeef), r.Sent())
	assert.Equal(t, uint32(0x2345_6789), r.Received())
}

func TestIngestShortDatagram(t *testing.T) {
	b := newTestBuffer(t, 8, 1)
	n := &countingNotifier{}
	in := NewIngest(b, fixedClock{time.Now()}, n)

	for _, size := range []int{0, 1, 11} {
		res, err := in.Handle(make([]byte, size))
		assert.True(t, errors.Is(err, ErrShortDatagram))
		assert.Equal(t, Dropped, res)
	}
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, n.n)
}

func TestIngestExactlyTwelveBytes(t *testing.T) {
	b := newTestBuffer(t, 8, 1)
	in := NewIngest(b, fixedClock{time.UnixMicro(5)}, nil)

	_, err := in.Handle(datagram(0, 0, 0, HeaderSize))
	require.NoError(t, err)

	r, _ := b.Pop()
	assert.False(t, r.IsSentinel())
	assert.Equal(t, uint32(5), r.Received())
}

func TestIngestDropDoesNotNotify(t *testing.T) {
	b := newTestBuffer(t, 2, 1)
	n := &countingNotifier{}
	in := NewIngest(b, fixedClock{time.Now()}, n)

	for i := 0; i < 3; i++ {
		in.Handle(datagram(1, uint32(i), 0, 16))
	}
	assert.Equal(t, 2, n.n)
	assert.True(t, b.Overflowed())
}

// A record built from a datagram and written by the drainer reproduces the
// datagram header plus the receive stamp byte for byte.
func TestRecordRoundTrip(t *testing.T) {
	now := time.UnixMicro(1_700_000_000_123_456)
	payload := datagram(7, 99, 123456, 32)
	b := newTestBuffer(t, 4, 1)
	in := NewIngest(b, fixedClock{now}, nil)
	_, err := in.Handle(payload)
	require.NoError(t, err)

	r, _ := b.Pop()
	wire := r.Bytes()

	want := make([]byte, RecordSize)
	copy(want, payload[:HeaderSize])
	binary.BigEndian.PutUint32(want[HeaderSize:], uint32(now.UnixMicro()))
	assert.Equal(t, want, wire)

	parsed, err := ParseRecord(wire)
	require.NoError(t, err)
	assert.Equal(t, r, parsed)
	assert.Equal(t, "id: 7, frame 99, tx 123456, rx "+strconv.FormatUint(uint64(uint32(now.UnixMicro())), 10), parsed.String())
}

func TestParseRecordShort(t *testing.T) {
	_, err := ParseRecord(make([]byte, 15))
	assert.Error(t, err)
}
