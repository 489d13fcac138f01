package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"firestige.xyz/eeglink/internal/command"
	"firestige.xyz/eeglink/internal/session"
)

// ClientInterface is what the commands need from the daemon connection.
type ClientInterface interface {
	Invoke(ctx context.Context, method string, params interface{}) (interface{}, error)
	DeviceStatus(ctx context.Context) (*session.Status, error)
}

// newClient is replaced in tests.
var newClient = func() ClientInterface {
	return command.NewUDSClient(socketPath, callTimeout)
}

// call invokes method and prints the result's status line.
func call(ctx context.Context, client ClientInterface, out io.Writer, method string, params interface{}) error {
	result, err := client.Invoke(ctx, method, params)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	var res struct {
		Status string `json:"status"`
	}
	if err := command.DecodeResult(result, &res); err == nil && res.Status != "" {
		fmt.Fprintf(out, "✓ %s: %s\n", method, res.Status)
		return nil
	}
	return printJSON(out, result)
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
