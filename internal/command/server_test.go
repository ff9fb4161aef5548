package command

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/netmon/internal/scheduler"
	"firestige.xyz/netmon/internal/transmit"
	"firestige.xyz/netmon/internal/transport"
)

func TestServerClient_Integration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := scheduler.NewLoop(64)
	go loop.Run(ctx)

	sink, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer sink.Close()

	sender, err := transport.NewUDPSender("127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	handler := NewHandler(transmit.New(loop, sender))

	ln, err := transport.Listen("control", "127.0.0.1:0")
	require.NoError(t, err)
	server := NewServer(ln, loop, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ctx)
	}()

	client, err := Dial(ctx, ln.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	t.Run("rejected command", func(t *testing.T) {
		reply, err := client.Call(ctx, "start 1.2.3.4 1 1 1 1 1")
		require.NoError(t, err)
		assert.Equal(t, "ERROR Invalid endpoint specified", reply)
	})

	t.Run("stop without session", func(t *testing.T) {
		assert.NoError(t, client.Stop(ctx))
	})

	t.Run("second connection refused", func(t *testing.T) {
		other, err := Dial(ctx, ln.Addr().String(), time.Second)
		require.NoError(t, err)
		defer other.Close()

		_, err = other.Call(ctx, "stop")
		assert.Error(t, err)
	})

	t.Run("counted session", func(t *testing.T) {
		err := client.Start(ctx, StartRequest{
			Endpoint: sink.LocalAddr().String(),
			ID:       42,
			Count:    5,
			Bytes:    64,
			DelayUS:  2000,
			TTL:      4,
		})
		require.NoError(t, err)

		buf := make([]byte, 70000)
		sink.SetReadDeadline(time.Now().Add(5 * time.Second))
		for frame := uint32(0); frame < 5; frame++ {
			n, _, err := sink.ReadFrom(buf)
			require.NoError(t, err)
			require.Equal(t, 64, n)
			assert.Equal(t, uint32(42), binary.BigEndian.Uint32(buf[0:4]))
			assert.Equal(t, frame, binary.BigEndian.Uint32(buf[4:8]))
		}
		n, _, err := sink.ReadFrom(buf)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, transmit.MarkerSize), buf[:n])
	})

	t.Run("start rejected by transmitter surfaces as error", func(t *testing.T) {
		err := client.Start(ctx, StartRequest{Endpoint: "127.0.0.1:9", ID: 0, Count: 1, Bytes: 12, DelayUS: 1000, TTL: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Id must be non-zero")
	})

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Error("server didn't stop in time")
	}
}

func TestDialConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr, time.Second)
	assert.Error(t, err)
}
