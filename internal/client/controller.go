// Package client drives a measurement run from the operator's side: it asks a
// transmitter to send towards a receiver and prints what the receiver reports.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"go.uber.org/multierr"

	"firestige.xyz/netmon/internal/capture"
	"firestige.xyz/netmon/internal/command"
)

// DefaultTimeout bounds dialing and each control exchange.
const DefaultTimeout = 5 * time.Second

// Options describe one run.
type Options struct {
	Receiver    string // receiver report address
	Transmitter string // transmitter control address
	Request     command.StartRequest
	Timeout     time.Duration
}

// Result summarizes a finished run.
type Result struct {
	Records   int  // data records printed, termination marker excluded
	Completed bool // the termination marker was seen
}

// Controller runs the operator side of a session.
type Controller struct {
	opts Options
	out  io.Writer
}

// New creates a controller that prints records to out.
func New(opts Options, out io.Writer) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Controller{opts: opts, out: out}
}

// Run connects to the receiver first, so no record is missed, then starts the
// transmitter and prints records until the termination marker arrives, the
// receiver ends the report session, or ctx is cancelled. Once started, the
// transmitter is always told to stop before Run returns.
func (c *Controller) Run(ctx context.Context) (res Result, err error) {
	slog.Info("contacting receiver", "addr", c.opts.Receiver)
	d := net.Dialer{Timeout: c.opts.Timeout}
	report, err := d.DialContext(ctx, "tcp", c.opts.Receiver)
	if err != nil {
		return res, fmt.Errorf("unable to contact receiver %s: %w", c.opts.Receiver, err)
	}
	defer func() { multierr.AppendInto(&err, ignoreClosed(report.Close())) }()

	slog.Info("contacting transmitter", "addr", c.opts.Transmitter)
	control, err := command.Dial(ctx, c.opts.Transmitter, c.opts.Timeout)
	if err != nil {
		return res, err
	}
	defer func() { multierr.AppendInto(&err, control.Close()) }()

	slog.Info("issuing request", "request", c.opts.Request.String())
	if err := control.Start(ctx, c.opts.Request); err != nil {
		return res, err
	}

	stop := context.AfterFunc(ctx, func() { report.Close() })
	defer stop()

	res, err = c.print(report)
	if ctx.Err() != nil {
		err = nil
	}

	slog.Info("stopping transmitter")
	stopCtx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()
	return res, multierr.Append(err, control.Stop(stopCtx))
}

func (c *Controller) print(r io.Reader) (Result, error) {
	var res Result
	raw := make([]byte, capture.RecordSize)
	for {
		if _, err := io.ReadFull(r, raw); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("receiver connection terminated")
				return res, nil
			}
			return res, fmt.Errorf("failed to read report: %w", err)
		}
		rec, _ := capture.ParseRecord(raw)
		if _, err := fmt.Fprintln(c.out, rec.String()); err != nil {
			return res, err
		}
		if rec.ID() == 0 {
			res.Completed = true
			return res, nil
		}
		res.Records++
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
