package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration",
	Long:  `Ask the daemon to re-read its config file. Log settings apply at once; other sections need a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

// runReload is split out for tests.
func runReload(ctx context.Context, client ClientInterface, out io.Writer) error {
	if _, err := client.Invoke(ctx, "config_reload", nil); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reloaded successfully")
	return nil
}
