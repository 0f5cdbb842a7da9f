// Package cmd provides the easel command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "easel",
	Short: "Easel - agent orchestration backend",
	Long: `Easel is the backend for canvas-based AI agent sessions.

It accepts chat turns, streams agent output to connected observers, persists
the message log, and supports deterministic cancellation of running turns.

Running easel without a subcommand starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
