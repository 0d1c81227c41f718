package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	rootStream   bool
	rootSkipGate bool
	rootVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "council",
	Short: "Multi-agent LLM council",
	Long: `Council runs every prompt through a fixed panel of model roles:
Curator, Researcher, Critic, Planner and Judge. Each role sees the work of
the roles before it and the Judge produces the final answer.

With no arguments, starts an interactive session that keeps conversation
history between prompts.

Core capabilities:
- Five-stage deliberation over Ollama, Anthropic or Bedrock
- Self-improvement proposals applied on a fresh branch after approval
- Self-healing proposals for captured failures, gated by a test run
- Append-only audit log of every proposal decision`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Write debug-level entries to the log file")
	rootCmd.Flags().BoolVar(&rootStream, "stream", false, "Print stage output as it is generated")
	rootCmd.Flags().BoolVar(&rootSkipGate, "skip-gate", false, "Skip the Curator stage and always convene the full council")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}
