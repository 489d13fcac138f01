// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/eeglink/internal/command"
)

var (
	// Global flags
	configFile  string
	socketPath  string
	callTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eeglink",
	Short: "eeglink - EEG amplifier acquisition daemon and control CLI",
	Long: `eeglink connects to a networked 8-channel EEG amplifier, validates and decodes
its data stream, runs band-pass filters, records to 24-bit biosignal files and
optionally publishes frames to Kafka.

The daemon owns the device session; every other command talks to it over a
Unix Domain Socket.`,
	Version:       command.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and EEGLINK_* environment when empty)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/eeglink.sock",
		"daemon socket path")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 10*time.Second,
		"control call timeout")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(simulateCmd)
}
