package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/netmon/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the netmon transmitter and/or receiver in foreground",
	Long: `Run the netmon daemon process in foreground.

The daemon will:
  1. Load configuration from the config file and NETMON_* environment variables
  2. Initialize logging and metrics
  3. Start the receiver (UDP capture + report port) if enabled
  4. Start the transmitter (control port) if enabled
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

var pidFile string

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (none when empty)")
}

func runDaemon() error {
	d, err := daemon.New(configFile, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
