package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/netmon/internal/transmit"
)

func TestParseStartValid(t *testing.T) {
	cmd, err := Parse("start 10.0.0.5:9000 42 5 64 2000 4")
	require.NoError(t, err)
	assert.Equal(t, VerbStart, cmd.Verb)
	assert.Equal(t, transmit.Params{
		Address:  "10.0.0.5",
		Port:     9000,
		ID:       42,
		Count:    5,
		Size:     64,
		Interval: 2 * time.Millisecond,
		TTL:      4,
	}, cmd.Start)
}

func TestParseStartDelayTruncates(t *testing.T) {
	cmd, err := Parse("start h:1 1 0 12 1999 1")
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, cmd.Start.Interval)
	assert.Equal(t, uint32(0), cmd.Start.Count)
}

func TestParseStop(t *testing.T) {
	cmd, err := Parse("stop")
	require.NoError(t, err)
	assert.Equal(t, VerbStop, cmd.Verb)
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"empty", "", "Unrecognised command"},
		{"unknown verb", "launch", "Unrecognised command"},
		{"leading space", " stop", "Unrecognised command"},
		{"tab separated", "start\t1.2.3.4:1 1 1 12 1000 1", "Unrecognised command"},
		{"double space", "start  1.2.3.4:1 1 1 12 1000 1", "Invalid number of arguments for start command"},
		{"trailing space", "start 1.2.3.4:1 1 1 12 1000 1 ", "Invalid number of arguments for start command"},
		{"too few tokens", "start 1.2.3.4:1 1 1 12 1000", "Invalid number of arguments for start command"},
		{"too many tokens", "start 1.2.3.4:1 1 1 12 1000 1 9", "Invalid number of arguments for start command"},
		{"missing port", "start 1.2.3.4 1 1 1 1 1", "Invalid endpoint specified"},
		{"two colons", "start ::1:80 1 1 12 1000 1", "Invalid endpoint specified"},
		{"bad port", "start 1.2.3.4:http 1 1 12 1000 1", "Invalid port specified"},
		{"bad id", "start 1.2.3.4:1 x 1 12 1000 1", "Invalid id specified"},
		{"negative id", "start 1.2.3.4:1 -1 1 12 1000 1", "Invalid id specified"},
		{"zero id", "start 1.2.3.4:1 0 1 12 1000 1", "Id must be non-zero"},
		{"bad count", "start 1.2.3.4:1 1 many 12 1000 1", "Invalid count specified"},
		{"bad bytes", "start 1.2.3.4:1 1 1 big 1000 1", "Invalid bytes specified"},
		{"bytes too small", "start 1.2.3.4:1 1 1 11 1000 1", "Specified bytes less than minimum of 12"},
		{"bytes too large", "start 1.2.3.4:1 1 1 65537 1000 1", "Specified bytes greater than maximum of 65536"},
		{"bad delay", "start 1.2.3.4:1 1 1 12 soon 1", "Invalid delay specified"},
		{"zero delay", "start 1.2.3.4:1 1 1 12 0 1", "Delay must be non-zero"},
		{"sub-millisecond delay", "start 10.0.0.5:9000 42 3 64 400 4", "Delay must be no less than 1ms for this sender"},
		{"bad ttl", "start 1.2.3.4:1 1 1 12 1000 x", "Invalid ttl specified"},
		// the first failing field wins
		{"zero id and bad bytes", "start 1.2.3.4:1 0 1 1 0 x", "Id must be non-zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			require.Error(t, err)
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.want, perr.Message)
		})
	}
}

func TestParseBoundaries(t *testing.T) {
	_, err := Parse("start 1.2.3.4:1 1 1 12 1000 1")
	assert.NoError(t, err)
	_, err = Parse("start 1.2.3.4:1 1 1 65536 1000 1")
	assert.NoError(t, err)
	_, err = Parse("start 1.2.3.4:1 4294967295 1 12 1000 -3")
	assert.NoError(t, err)
}

func TestStartRequestStringRoundTrip(t *testing.T) {
	req := StartRequest{Endpoint: "10.0.0.5:9000", ID: 42, Count: 5, Bytes: 64, DelayUS: 2000, TTL: 4}
	assert.Equal(t, "start 10.0.0.5:9000 42 5 64 2000 4", req.String())

	cmd, err := Parse(req.String())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:9000", cmd.Start.Endpoint())
}
