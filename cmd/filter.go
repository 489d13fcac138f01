package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"firestige.xyz/eeglink/internal/command"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Manage the band-pass filter pipeline",
}

var filterAdd command.FilterAddParams

var filterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a band-pass filter",
	Long: `Add a band-pass filter to the live pipeline.

Examples:
  eeglink filter add --type butterworth --order 4 --low 1 --high 40
  eeglink filter add --order 2 --low 8 --high 12 --channels 1,2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilterAdd(cmd.Context(), newClient(), cmd.OutOrStdout(), filterAdd)
	},
}

var filterRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a filter by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilterRemove(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	f := filterAddCmd.Flags()
	f.StringVar(&filterAdd.Type, "type", "butterworth", "filter family")
	f.IntVar(&filterAdd.Order, "order", 2, "filter order")
	f.IntSliceVar(&filterAdd.Channels, "channels", nil, "channels 1-8 (default all)")
	f.Float64Var(&filterAdd.Rate, "rate", 0, "sample rate in Hz (default session rate)")
	f.Float64Var(&filterAdd.Low, "low", 0, "low cutoff in Hz")
	f.Float64Var(&filterAdd.High, "high", 0, "high cutoff in Hz")

	filterCmd.AddCommand(filterAddCmd)
	filterCmd.AddCommand(filterRemoveCmd)
	filterCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), newClient(), cmd.OutOrStdout(), "filter_clear", nil)
		},
	})
	filterCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), newClient(), cmd.OutOrStdout(), "filter_list", nil)
		},
	})
}

func runFilterAdd(ctx context.Context, client ClientInterface, out io.Writer, p command.FilterAddParams) error {
	if p.High <= p.Low {
		return fmt.Errorf("high cutoff %g must be above low cutoff %g", p.High, p.Low)
	}
	return call(ctx, client, out, "filter_add", p)
}

func runFilterRemove(ctx context.Context, client ClientInterface, out io.Writer, arg string) error {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid filter id %q: %w", arg, err)
	}
	return call(ctx, client, out, "filter_remove", command.FilterRemoveParams{ID: id})
}
