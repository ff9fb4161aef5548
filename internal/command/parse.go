// Package command implements the transmitter control protocol: newline
// terminated text commands answered with "OK" or "ERROR <message>".
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"firestige.xyz/netmon/internal/transmit"
)

// Verbs understood by the control protocol.
const (
	VerbStart = "start"
	VerbStop  = "stop"
)

// startTokens is the token count of a start command, verb included.
const startTokens = 7

// ProtocolError is a rejected command. Its message is sent back verbatim.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func reject(msg string) error {
	return &ProtocolError{Message: msg}
}

// Command is a parsed control line.
type Command struct {
	Verb  string
	Start transmit.Params // set for VerbStart
}

// StartRequest holds the raw fields of a start command as an operator types
// them: the delay is in microseconds.
type StartRequest struct {
	Endpoint string // address:port
	ID       uint32
	Count    uint32
	Bytes    int
	DelayUS  int64
	TTL      int
}

// String renders the request as a protocol line without the newline.
func (r StartRequest) String() string {
	return fmt.Sprintf("%s %s %d %d %d %d %d", VerbStart, r.Endpoint, r.ID, r.Count, r.Bytes, r.DelayUS, r.TTL)
}

// tokens splits a line on single spaces. Repeated or leading spaces yield
// empty tokens, so such lines fail validation.
func tokens(line string) []string {
	return strings.Split(line, " ")
}

// Parse validates one command line. Validation of start stops at the first
// failing field.
func Parse(line string) (Command, error) {
	parts := tokens(line)

	switch parts[0] {
	case VerbStart:
		p, err := parseStart(parts)
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbStart, Start: p}, nil
	case VerbStop:
		return Command{Verb: VerbStop}, nil
	default:
		return Command{}, reject("Unrecognised command")
	}
}

func parseStart(parts []string) (transmit.Params, error) {
	var p transmit.Params

	if len(parts) != startTokens {
		return p, reject("Invalid number of arguments for start command")
	}

	endpoint := strings.Split(parts[1], ":")
	if len(endpoint) != 2 {
		return p, reject("Invalid endpoint specified")
	}
	port, err := strconv.Atoi(endpoint[1])
	if err != nil {
		return p, reject("Invalid port specified")
	}
	p.Address = endpoint[0]
	p.Port = port

	id, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return p, reject("Invalid id specified")
	}
	if id == 0 {
		return p, reject("Id must be non-zero")
	}
	p.ID = uint32(id)

	count, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return p, reject("Invalid count specified")
	}
	p.Count = uint32(count)

	size, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return p, reject("Invalid bytes specified")
	}
	if size < transmit.MinDatagramSize {
		return p, reject(fmt.Sprintf("Specified bytes less than minimum of %d", transmit.MinDatagramSize))
	}
	if size > transmit.MaxDatagramSize {
		return p, reject(fmt.Sprintf("Specified bytes greater than maximum of %d", transmit.MaxDatagramSize))
	}
	p.Size = int(size)

	delay, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return p, reject("Invalid delay specified")
	}
	if delay == 0 {
		return p, reject("Delay must be non-zero")
	}
	ms := delay / 1000
	if ms < 1 {
		return p, reject("Delay must be no less than 1ms for this sender")
	}
	p.Interval = time.Duration(ms) * time.Millisecond

	ttl, err := strconv.Atoi(parts[6])
	if err != nil {
		return p, reject("Invalid ttl specified")
	}
	p.TTL = ttl

	return p, nil
}
