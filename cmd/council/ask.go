package main

import (
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/council/internal/council"
	"github.com/ShayCichocki/council/internal/signals"
)

var (
	askStream   bool
	askSkipGate bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt...>",
	Short: "Run a single council deliberation",
	Long: `Run one prompt through the council and print every stage followed by
the final answer and reasoning summary.

Examples:
  council ask "How should we shard the ingest queue?"
  council ask --stream --skip-gate "Review our retry policy"
  council ask "self-improve the error messages"   # self-improvement proposal`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", false, "Print stage output as it is generated")
	askCmd.Flags().BoolVar(&askSkipGate, "skip-gate", false, "Start at the Researcher stage")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(rootVerbose)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, release := signals.Watch(ctx, a.root, a.logger)
	defer release()

	req := council.Request{
		Prompt:   strings.Join(args, " "),
		SkipGate: askSkipGate,
	}
	if askStream {
		req.Sink = streamSink(cmd.OutOrStdout())
	}

	res := a.pipeline.Run(ctx, req)
	printResult(cmd.OutOrStdout(), res, askStream, a.protect)
	if res.Failed() {
		return errors.New(res.Error)
	}
	return nil
}
