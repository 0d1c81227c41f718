package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/council/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the deliberation running in this project",
	Long: `Write the stop signal file. A council run in this project aborts at its
next stage or backend call, the same as pressing Ctrl+C in its terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := projectRoot()
		if err := signals.SendStop(root); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stop requested (%s)\n", signals.StopPath(root))
		return nil
	},
}
