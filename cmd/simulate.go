package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/eeglink/internal/simulator"
)

var (
	simListen string
	simConfig simulator.Config
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated amplifier",
	Long: `Listen for TCP connections and behave like an amplifier: answer the start
command with a time sync, send the header and stream synthetic data packets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runSimulate(ctx, cmd, simListen, simConfig)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simListen, "listen", "127.0.0.1:12345", "listen address")
	simulateCmd.Flags().StringVar(&simConfig.Firmware, "firmware", "", "reported firmware version")
	simulateCmd.Flags().IntVar(&simConfig.Battery, "battery", 100, "reported battery level")
	simulateCmd.Flags().DurationVar(&simConfig.Interval, "interval", 100*time.Millisecond, "data packet interval")
	simulateCmd.Flags().BoolVar(&simConfig.SkipHeader, "skip-header", false, "never send the header packet")
}

func runSimulate(ctx context.Context, cmd *cobra.Command, addr string, cfg simulator.Config) error {
	dev, err := simulator.Listen(addr, cfg)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer dev.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Simulated amplifier listening on %s\n", dev.Addr())
	return dev.Serve(ctx)
}
