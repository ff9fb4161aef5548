package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/netmon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect netmon configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the effective configuration (file, NETMON_* environment variables and
defaults merged) as YAML. The output is itself a valid config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow(configFile, cmd.OutOrStdout())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the daemon.

Examples:
  netmon config validate -c /etc/netmon/netmon.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigValidate(configFile, cmd.OutOrStdout())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	data, err := cfg.Dump()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func runConfigValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	var roles []string
	if cfg.Transmitter.Enabled {
		roles = append(roles, "transmitter "+cfg.Transmitter.Listen)
	}
	if cfg.Receiver.Enabled {
		roles = append(roles, fmt.Sprintf("receiver udp %s report %s", cfg.Receiver.UDPListen, cfg.Receiver.ReportListen))
	}
	fmt.Fprintf(out, "VALID: %v\n", roles)
	return nil
}
