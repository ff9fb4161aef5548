package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/netmon/internal/capture"
	"firestige.xyz/netmon/internal/scheduler"
)

type fakeStream struct {
	bytes.Buffer
	closed bool
	full   bool
	err    error
}

func (s *fakeStream) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.full {
		return 0, ErrStreamFull
	}
	return s.Buffer.Write(p)
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) records(t *testing.T) []capture.Record {
	t.Helper()
	raw := s.Bytes()
	require.Zero(t, len(raw)%capture.RecordSize)
	var out []capture.Record
	for len(raw) > 0 {
		r, err := capture.ParseRecord(raw)
		require.NoError(t, err)
		out = append(out, r)
		raw = raw[capture.RecordSize:]
	}
	return out
}

type fixture struct {
	sched *scheduler.Manual
	buf   *capture.Buffer
	d     *Drainer
}

func newFixture(t *testing.T, capacity, batch int) *fixture {
	t.Helper()
	buf, err := capture.NewBuffer(capacity, 1)
	require.NoError(t, err)
	sched := scheduler.NewManual(time.Unix(0, 0))
	return &fixture{
		sched: sched,
		buf:   buf,
		d:     NewDrainer(buf, sched, time.Millisecond, batch),
	}
}

func (f *fixture) push(frames ...uint32) {
	for _, fr := range frames {
		f.buf.Push(capture.NewRecord(5, fr, fr, fr))
		f.d.Notify()
	}
}

func TestDrainerIdleWithoutConsumer(t *testing.T) {
	f := newFixture(t, 8, 1)
	f.push(0, 1)

	assert.Equal(t, Idle, f.d.State())
	assert.Equal(t, 0, f.sched.Active())
}

func TestDrainerConnectDrainsInOrder(t *testing.T) {
	f := newFixture(t, 8, 1)
	f.push(0, 1, 2)

	s := &fakeStream{}
	require.NoError(t, f.d.Connect(s))
	assert.Equal(t, Draining, f.d.State())

	f.sched.Advance(2 * time.Millisecond)
	assert.Len(t, s.records(t), 2)
	f.sched.Advance(time.Millisecond)

	got := s.records(t)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, uint32(i), r.Frame())
	}
	assert.Equal(t, Idle, f.d.State())
	assert.True(t, f.d.Connected())
	assert.False(t, s.closed)
}

func TestDrainerReactivatesOnNewArrival(t *testing.T) {
	f := newFixture(t, 8, 1)
	s := &fakeStream{}
	require.NoError(t, f.d.Connect(s))
	assert.Equal(t, Idle, f.d.State())

	f.push(7)
	assert.Equal(t, Draining, f.d.State())
	f.sched.Advance(5 * time.Millisecond)

	require.Len(t, s.records(t), 1)
	assert.Equal(t, Idle, f.d.State())
}

func TestDrainerSentinelEndsSession(t *testing.T) {
	f := newFixture(t, 8, 1)
	f.push(1)
	f.buf.Push(capture.Sentinel)
	f.push(2)

	s := &fakeStream{}
	require.NoError(t, f.d.Connect(s))
	f.sched.Advance(10 * time.Millisecond)

	got := s.records(t)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(1), got[0].Frame())
	assert.True(t, s.closed)
	assert.False(t, f.d.Connected())
	assert.Equal(t, Idle, f.d.State())
	// the record after the sentinel waits for the next consumer
	assert.Equal(t, 1, f.buf.Len())

	next := &fakeStream{}
	require.NoError(t, f.d.Connect(next))
	f.sched.Advance(time.Millisecond)
	require.Len(t, next.records(t), 1)
	assert.Equal(t, uint32(2), next.records(t)[0].Frame())
}

func TestDrainerDisconnectRetainsRecords(t *testing.T) {
	f := newFixture(t, 8, 1)
	f.push(0, 1, 2, 3)

	s := &fakeStream{}
	require.NoError(t, f.d.Connect(s))
	f.sched.Advance(time.Millisecond)
	f.d.Disconnect(s)

	assert.Equal(t, Idle, f.d.State())
	assert.False(t, f.d.Connected())
	assert.Equal(t, 0, f.sched.Active())
	assert.Equal(t, 3, f.buf.Len())
	assert.False(t, s.closed)

	f.sched.Advance(10 * time.Millisecond)
	assert.Len(t, s.records(t), 1)
}

func TestDrainerIgnoresStaleDisconnect(t *testing.T) {
	f := newFixture(t, 8, 1)
	old := &fakeStream{}
	cur := &fakeStream{}
	require.NoError(t, f.d.Connect(old))
	f.d.Disconnect(old)
	require.NoError(t, f.d.Connect(cur))

	f.d.Disconnect(old)
	assert.True(t, f.d.Connected())
}

func TestDrainerSecondConnectRejected(t *testing.T) {
	f := newFixture(t, 8, 1)
	require.NoError(t, f.d.Connect(&fakeStream{}))
	assert.ErrorIs(t, f.d.Connect(&fakeStream{}), ErrAlreadyConnected)
}

func TestDrainerBackpressureRetries(t *testing.T) {
	f := newFixture(t, 8, 1)
	f.push(0, 1)

	s := &fakeStream{full: true}
	require.NoError(t, f.d.Connect(s))
	f.sched.Advance(5 * time.Millisecond)
	assert.Equal(t, 2, f.buf.Len())
	assert.Equal(t, Draining, f.d.State())

	s.full = false
	f.sched.Advance(2 * time.Millisecond)
	assert.Len(t, s.records(t), 2)
	assert.Equal(t, Idle, f.d.State())
}

func TestDrainerWriteErrorDetaches(t *testing.T) {
	f := newFixture(t, 8, 1)
	f.push(0, 1)

	s := &fakeStream{err: errors.New("broken pipe")}
	require.NoError(t, f.d.Connect(s))
	f.sched.Advance(time.Millisecond)

	assert.False(t, f.d.Connected())
	assert.Equal(t, Idle, f.d.State())
	assert.Equal(t, 2, f.buf.Len())
}

func TestDrainerBatch(t *testing.T) {
	f := newFixture(t, 16, 4)
	f.push(0, 1, 2, 3, 4, 5)

	s := &fakeStream{}
	require.NoError(t, f.d.Connect(s))
	f.sched.Advance(time.Millisecond)
	assert.Len(t, s.records(t), 4)
	f.sched.Advance(time.Millisecond)
	assert.Len(t, s.records(t), 6)
	assert.Equal(t, Idle, f.d.State())
}

// Records produced by ingest come out of the drainer byte for byte.
func TestIngestToStreamRoundTrip(t *testing.T) {
	f := newFixture(t, 8, 1)
	in := capture.NewIngest(f.buf, f.sched, f.d)
	s := &fakeStream{}
	require.NoError(t, f.d.Connect(s))

	payload := []byte{0, 0, 0, 42, 0, 0, 0, 7, 1, 2, 3, 4, 0xff, 0xff}
	_, err := in.Handle(payload)
	require.NoError(t, err)
	f.sched.Advance(time.Millisecond)

	wire := s.Bytes()
	require.Len(t, wire, capture.RecordSize)
	assert.Equal(t, payload[:capture.HeaderSize], wire[:capture.HeaderSize])
}
