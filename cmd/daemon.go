package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/eeglink/internal/daemon"
)

var pidFile string

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run eeglink daemon in foreground",
	Long: `Run the eeglink daemon process in foreground.

The daemon will:
  1. Load global configuration from config file
  2. Initialize logging and metrics
  3. Create the device session, install configured filters and the Kafka publisher
  4. Start UDS server for CLI control
  5. Connect to the amplifier and stream
  6. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd)
	},
}

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (default from control.pid_file)")
}

func runDaemon(cmd *cobra.Command) error {
	// An explicit --socket wins over the config file.
	sock := ""
	if cmd.Flags().Changed("socket") {
		sock = socketPath
	}

	d, err := daemon.New(configFile, sock, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return d.Run()
}
