package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running netmon daemon",
	Long: `Stop a running netmon daemon gracefully by sending SIGTERM to the process
recorded in its PID file. A running transmit session sends its termination
marker before the daemon exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignal(signalPIDFile, syscall.SIGTERM, cmd.OutOrStdout())
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration (log settings)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignal(signalPIDFile, syscall.SIGHUP, cmd.OutOrStdout())
	},
}

var signalPIDFile string

func init() {
	for _, c := range []*cobra.Command{stopCmd, reloadCmd} {
		c.Flags().StringVarP(&signalPIDFile, "pidfile", "p", "/var/run/netmon.pid",
			"PID file written by 'netmon daemon --pidfile'")
	}
}

func runSignal(path string, sig syscall.Signal, out io.Writer) error {
	pid, err := readPIDFile(path)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal daemon (pid %d): %w", pid, err)
	}

	fmt.Fprintf(out, "Sent %s to netmon daemon (pid %d)\n", sig, pid)
	return nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", path)
	}
	return pid, nil
}
