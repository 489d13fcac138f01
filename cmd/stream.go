package cmd

import (
	"github.com/spf13/cobra"
)

// streamCmd pauses and resumes delivery of decoded frames without
// touching the device connection.
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Pause or resume data translation",
}

func init() {
	streamCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Resume delivering frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), newClient(), cmd.OutOrStdout(), "translation_start", nil)
		},
	})
	streamCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Pause delivering frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), newClient(), cmd.OutOrStdout(), "translation_stop", nil)
		},
	})
}
