package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device session status",
	Long: `Query the daemon for the device session.

Shows: device address, rate, stage, recording state, battery, firmware and
installed filters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newClient(), cmd.OutOrStdout(), statusJSON)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print raw JSON")
}

func runStatus(ctx context.Context, client ClientInterface, out io.Writer, asJSON bool) error {
	st, err := client.DeviceStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}
	if asJSON {
		return printJSON(out, st)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Device:\t%s\n", st.Device)
	fmt.Fprintf(w, "Stage:\t%s\n", st.Stage)
	fmt.Fprintf(w, "Rate:\t%d Hz\n", st.Rate)
	fmt.Fprintf(w, "Protected:\t%t\n", st.Protected)
	fmt.Fprintf(w, "Streaming paused:\t%t\n", st.TranslationPaused)
	fmt.Fprintf(w, "Header captured:\t%t\n", st.HeaderCaptured)
	switch {
	case st.Recording && st.RecordPaused:
		fmt.Fprintf(w, "Recording:\tpaused (%s, %d frames)\n", st.RecordPath, st.RecordFrames)
	case st.Recording:
		fmt.Fprintf(w, "Recording:\t%s (%d frames)\n", st.RecordPath, st.RecordFrames)
	default:
		fmt.Fprintf(w, "Recording:\tno\n")
	}
	fmt.Fprintf(w, "Battery:\t%d%%\n", st.Battery)
	if st.Firmware != "" {
		fmt.Fprintf(w, "Firmware:\t%s\n", st.Firmware)
	}
	for _, f := range st.Filters {
		ch := make([]string, len(f.Channels))
		for i, c := range f.Channels {
			ch[i] = fmt.Sprint(c)
		}
		fmt.Fprintf(w, "Filter %d:\t%s order %d, %g-%g Hz @ %g Hz, channels %s\n",
			f.ID, f.Kind, f.Order, f.Low, f.High, f.Rate, strings.Join(ch, ","))
	}
	return w.Flush()
}
