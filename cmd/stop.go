package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the eeglink daemon",
	Long: `Stop the eeglink daemon gracefully.

The daemon closes any open record file, disconnects from the device,
flushes the publisher and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, client ClientInterface, out io.Writer) error {
	return call(ctx, client, out, "daemon_shutdown", nil)
}
