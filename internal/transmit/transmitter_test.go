package transmit

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/netmon/internal/scheduler"
)

// MockSender records every datagram.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(dest string, ttl int, payload []byte) error {
	args := m.Called(dest, ttl, payload)
	return args.Error(0)
}

func (m *MockSender) payloads() [][]byte {
	var out [][]byte
	for _, c := range m.Calls {
		if c.Method == "Send" {
			out = append(out, c.Arguments.Get(2).([]byte))
		}
	}
	return out
}

func scenarioA() Params {
	return Params{
		Address:  "10.0.0.5",
		Port:     9000,
		ID:       42,
		Count:    5,
		Size:     64,
		Interval: 2 * time.Millisecond,
		TTL:      4,
	}
}

func TestTransmitterCountedSession(t *testing.T) {
	sched := scheduler.NewManual(time.UnixMicro(1_000_000))
	sender := new(MockSender)
	sender.On("Send", "10.0.0.5:9000", 4, mock.Anything).Return(nil)

	tx := New(sched, sender)
	tx.Start(scenarioA())
	assert.True(t, tx.Running())

	sched.Advance(20 * time.Millisecond)

	assert.False(t, tx.Running())
	assert.Equal(t, 0, sched.Active())

	sent := sender.payloads()
	require.Len(t, sent, 6)
	for i, p := range sent[:5] {
		require.Len(t, p, 64)
		assert.Equal(t, uint32(42), binary.BigEndian.Uint32(p[0:4]))
		assert.Equal(t, uint32(i), binary.BigEndian.Uint32(p[4:8]))
		// ticks at 2ms, 4ms, ... after the start time
		wantTS := uint32(1_000_000 + (i+1)*2000)
		assert.Equal(t, wantTS, binary.BigEndian.Uint32(p[8:12]))
		assert.Equal(t, make([]byte, 52), p[12:])
	}
	assert.Equal(t, make([]byte, MarkerSize), sent[5])
	sender.AssertNumberOfCalls(t, "Send", 6)
}

func TestTransmitterCadence(t *testing.T) {
	sched := scheduler.NewManual(time.Unix(0, 0))
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	tx := New(sched, sender)
	tx.Start(scenarioA())

	sched.Advance(time.Millisecond)
	assert.Len(t, sender.payloads(), 0)
	sched.Advance(time.Millisecond)
	assert.Len(t, sender.payloads(), 1)
	sched.Advance(3 * time.Millisecond)
	assert.Len(t, sender.payloads(), 2)
}

func TestTransmitterInfiniteUntilStop(t *testing.T) {
	sched := scheduler.NewManual(time.Unix(0, 0))
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	p := scenarioA()
	p.Count = 0
	p.Interval = time.Millisecond
	tx := New(sched, sender)
	tx.Start(p)

	sched.Advance(100 * time.Millisecond)
	assert.True(t, tx.Running())
	assert.Equal(t, uint32(100), tx.Session().Frame)

	assert.True(t, tx.Stop())
	assert.False(t, tx.Running())

	sent := sender.payloads()
	require.Len(t, sent, 101)
	assert.Equal(t, make([]byte, MarkerSize), sent[100])

	sched.Advance(10 * time.Millisecond)
	assert.Len(t, sender.payloads(), 101)
}

func TestTransmitterStopWithoutSession(t *testing.T) {
	sender := new(MockSender)
	tx := New(scheduler.NewManual(time.Unix(0, 0)), sender)

	assert.False(t, tx.Stop())
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransmitterRestartSupersedes(t *testing.T) {
	sched := scheduler.NewManual(time.Unix(0, 0))
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	tx := New(sched, sender)
	first := scenarioA()
	first.Count = 0
	tx.Start(first)
	sched.Advance(4 * time.Millisecond)

	second := scenarioA()
	second.Address = "10.0.0.6"
	second.Count = 1
	s := tx.Start(second)
	assert.Equal(t, uint32(0), s.Frame)
	assert.Equal(t, 1, sched.Active())

	sched.Advance(10 * time.Millisecond)
	assert.False(t, tx.Running())

	var dests []string
	for _, c := range sender.Calls {
		dests = append(dests, c.Arguments.String(0))
	}
	assert.Equal(t, []string{
		"10.0.0.5:9000", "10.0.0.5:9000", // two data datagrams
		"10.0.0.5:9000", // marker of the superseded session
		"10.0.0.6:9000", // one data datagram
		"10.0.0.6:9000", // marker
	}, dests)
}

func TestTransmitterSendErrorKeepsRunning(t *testing.T) {
	sched := scheduler.NewManual(time.Unix(0, 0))
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("network unreachable"))

	tx := New(sched, sender)
	p := scenarioA()
	p.Count = 3
	tx.Start(p)
	sched.Advance(4 * time.Millisecond)

	assert.True(t, tx.Running())
	assert.Equal(t, uint32(2), tx.Session().Frame)
	assert.Equal(t, uint32(1), tx.Session().Remaining)
}

func TestTransmitterStatus(t *testing.T) {
	sched := scheduler.NewManual(time.Unix(0, 0))
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	tx := New(sched, sender)

	assert.Equal(t, Status{}, tx.Status())

	s := tx.Start(scenarioA())
	sched.Advance(2 * time.Millisecond)
	st := tx.Status()
	assert.True(t, st.Running)
	assert.Equal(t, s.UUID.String(), st.Session)
	assert.Equal(t, "10.0.0.5:9000", st.Endpoint)
	assert.Equal(t, uint32(1), st.Frame)
	assert.Equal(t, uint32(4), st.Remaining)
}

func TestBuildDatagram(t *testing.T) {
	b := BuildDatagram(MinDatagramSize, 0x01020304, 0x05060708, 0x090a0b0c)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, b)
}
