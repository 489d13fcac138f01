package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/eeglink/internal/command"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start or stop the device session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Connect to the amplifier and start streaming",
	Long: `Start a device session. Flags left unset keep the daemon's configured values.

Examples:
  eeglink session start
  eeglink session start --host 192.168.127.125 --rate 1000 --protected=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionStart(cmd.Context(), newClient(), cmd.OutOrStdout(), sessionStartParams(cmd))
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Disconnect from the amplifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionStop(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

var (
	sessionHost      string
	sessionPort      int
	sessionRate      int
	sessionProtected bool
	sessionWait      bool
)

func init() {
	f := sessionStartCmd.Flags()
	f.StringVar(&sessionHost, "host", "", "device host")
	f.IntVar(&sessionPort, "port", 0, "device port")
	f.IntVar(&sessionRate, "rate", 0, "sample rate (250, 500 or 1000)")
	f.BoolVar(&sessionProtected, "protected", true, "use the framed, CRC protected stream")
	f.BoolVar(&sessionWait, "wait", false, "block until the first connection attempt completes")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStopCmd)
}

// sessionStartParams sends only the flags the user set.
func sessionStartParams(cmd *cobra.Command) command.SessionStartParams {
	var p command.SessionStartParams
	f := cmd.Flags()
	if f.Changed("host") {
		p.Host = &sessionHost
	}
	if f.Changed("port") {
		p.Port = &sessionPort
	}
	if f.Changed("rate") {
		p.Rate = &sessionRate
	}
	if f.Changed("protected") {
		p.Protected = &sessionProtected
	}
	if f.Changed("wait") {
		p.Wait = &sessionWait
	}
	return p
}

func runSessionStart(ctx context.Context, client ClientInterface, out io.Writer, params command.SessionStartParams) error {
	return call(ctx, client, out, "session_start", params)
}

func runSessionStop(ctx context.Context, client ClientInterface, out io.Writer) error {
	return call(ctx, client, out, "session_stop", nil)
}
