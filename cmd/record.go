package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/eeglink/internal/command"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Control recording to a BDF file",
}

var (
	recordPatient string
	recordPath    string
)

var recordStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start recording the live stream",
	Long: `Start recording. The device header must already have been received.

Examples:
  eeglink record start --patient "Jane Doe"
  eeglink record start --patient "Jane Doe" --path /data/jane.bdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecordStart(cmd.Context(), newClient(), cmd.OutOrStdout(), recordPatient, recordPath)
	},
}

func init() {
	recordStartCmd.Flags().StringVar(&recordPatient, "patient", "", "patient name written to the file header")
	recordStartCmd.Flags().StringVar(&recordPath, "path", "", "output file (default: timestamped file in recording.dir)")

	recordCmd.AddCommand(recordStartCmd)
	recordCmd.AddCommand(recordSimpleCmd("stop", "Finish the record file", "record_stop"))
	recordCmd.AddCommand(recordSimpleCmd("pause", "Stop appending frames", "record_pause"))
	recordCmd.AddCommand(recordSimpleCmd("resume", "Resume appending frames", "record_resume"))
}

func recordSimpleCmd(use, short, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), newClient(), cmd.OutOrStdout(), method, nil)
		},
	}
}

func runRecordStart(ctx context.Context, client ClientInterface, out io.Writer, patient, path string) error {
	return call(ctx, client, out, "record_start", command.RecordStartParams{Patient: patient, Path: path})
}
