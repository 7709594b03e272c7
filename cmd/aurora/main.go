// Package main implements the aurora CLI for asking questions and loading message exports.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aurora",
		Short: "Ask questions about member messages",
		Long: `aurora is a command-line interface for the Aurora QA API.
It asks questions against a running server and seeds a local index from a message export.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newAskCmd())
	root.AddCommand(newLoadCmd())
	return root
}
