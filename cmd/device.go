package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"firestige.xyz/eeglink/internal/command"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Send control commands to the amplifier",
	Long: `Send a control command to the amplifier. Commands are accepted only while the
session is streaming and no recording is open.`,
}

var deviceRxThresholdCmd = &cobra.Command{
	Use:   "rx-threshold <value>",
	Short: "Set the receive threshold (clamped to 10-300)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRxThreshold(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0])
	},
}

var deviceIndicationCmd = &cobra.Command{
	Use:       "indication <on|off>",
	Short:     "Switch the indication test on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndication(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	deviceCmd.AddCommand(deviceRxThresholdCmd)
	deviceCmd.AddCommand(deviceIndicationCmd)
	deviceCmd.AddCommand(&cobra.Command{
		Use:   "poweroff",
		Short: "Power the amplifier down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), newClient(), cmd.OutOrStdout(), "power_off", nil)
		},
	})
	deviceCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Request a time synchronisation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), newClient(), cmd.OutOrStdout(), "ntp_sync", nil)
		},
	})
}

func runRxThreshold(ctx context.Context, client ClientInterface, out io.Writer, arg string) error {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", arg, err)
	}
	return call(ctx, client, out, "rx_threshold", command.RxThresholdParams{Value: v})
}

func runIndication(ctx context.Context, client ClientInterface, out io.Writer, arg string) error {
	var on bool
	switch arg {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("invalid indication state %q (want on or off)", arg)
	}
	return call(ctx, client, out, "indication_test", command.IndicationTestParams{On: on})
}
