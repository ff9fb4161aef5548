package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/netmon/internal/client"
	"firestige.xyz/netmon/internal/command"
)

// runCmd represents the controller
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a transmitter towards a receiver and print the captured records",
	Long: `Connect to a receiver's report port and a transmitter's control port, ask the
transmitter to send towards the receiver, and print every record the receiver
reports as "id: <id>, frame <frame>, tx <sent>, rx <received>".

The run ends when the receiver reports the termination marker (id 0) or on
Ctrl-C, which sends "stop" to the transmitter.

Examples:
  netmon run -r 10.0.0.2:8889 -s 10.0.0.1:8888 --count 1000 --delay 2000
  netmon run -r 10.0.0.2:8889 -s 10.0.0.1:8888 --target 239.1.1.1:8889 --ttl 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runFlags.options()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runController(ctx, opts, cmd.OutOrStdout())
	},
}

type controllerFlags struct {
	receiver    string
	transmitter string
	target      string
	id          uint32
	count       uint32
	bytes       int
	delay       int64
	ttl         int
	timeout     time.Duration
}

var runFlags controllerFlags

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.receiver, "receiver", "r", "", "receiver report address host:port (required)")
	f.StringVarP(&runFlags.transmitter, "sender", "s", "", "transmitter control address host:port (required)")
	f.StringVar(&runFlags.target, "target", "", "datagram destination host:port (default: receiver host, port 8889)")
	f.Uint32VarP(&runFlags.id, "id", "i", 1, "non-zero id for this set of messages")
	f.Uint32Var(&runFlags.count, "count", 0, "number of messages to send (0 = infinite)")
	f.IntVarP(&runFlags.bytes, "bytes", "b", 12, "bytes in each message (min 12, max 65536)")
	f.Int64VarP(&runFlags.delay, "delay", "d", 10000, "delay in microseconds between messages")
	f.IntVarP(&runFlags.ttl, "ttl", "t", 1, "TTL used for messages")
	f.DurationVar(&runFlags.timeout, "timeout", client.DefaultTimeout, "dial and control reply timeout")
	runCmd.MarkFlagRequired("receiver")
	runCmd.MarkFlagRequired("sender")
}

// defaultCapturePort is the receiver's UDP port when --target is not given.
const defaultCapturePort = "8889"

func (f controllerFlags) options() (client.Options, error) {
	if f.id == 0 {
		return client.Options{}, errors.New("invalid id: must be non-zero")
	}
	if f.delay == 0 {
		return client.Options{}, errors.New("invalid delay: must be non-zero")
	}

	target := f.target
	if target == "" {
		host, _, err := net.SplitHostPort(f.receiver)
		if err != nil {
			return client.Options{}, fmt.Errorf("invalid receiver address %q: %w", f.receiver, err)
		}
		target = net.JoinHostPort(host, defaultCapturePort)
	}

	return client.Options{
		Receiver:    f.receiver,
		Transmitter: f.transmitter,
		Timeout:     f.timeout,
		Request: command.StartRequest{
			Endpoint: target,
			ID:       f.id,
			Count:    f.count,
			Bytes:    f.bytes,
			DelayUS:  f.delay,
			TTL:      f.ttl,
		},
	}, nil
}

func runController(ctx context.Context, opts client.Options, out io.Writer) error {
	res, err := client.New(opts, out).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d records received, completed: %t\n", res.Records, res.Completed)
	return nil
}
