// Package main is the entry point for eeglink.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/eeglink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
