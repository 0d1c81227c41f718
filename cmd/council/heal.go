package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/council/internal/council"
	"github.com/ShayCichocki/council/internal/healing"
)

var (
	healSimulate bool
	healYes      bool
)

var healCmd = &cobra.Command{
	Use:   "heal [error message...]",
	Short: "Propose and apply a fix for a failure",
	Long: `Capture a failure, ask the council for a diagnosis and unified diff,
and apply it on a fresh self-heal branch after confirmation.

The proposal's tests run fail-fast after the patch is applied; the fix is
committed only when they all pass. Every step is written to the audit log.

Examples:
  council heal "panic: runtime error: index out of range"
  council heal --simulate          # exercise the capture path end to end
  council heal --yes "build broke" # apply without asking`,
	RunE: runHeal,
}

func init() {
	healCmd.Flags().BoolVar(&healSimulate, "simulate", false, "Capture a simulated failure with a real stack")
	healCmd.Flags().BoolVarP(&healYes, "yes", "y", false, "Apply the proposal without asking")
}

func runHeal(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" && !healSimulate {
		return fmt.Errorf("an error message or --simulate is required")
	}

	a, err := newApp(rootVerbose)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var ec *healing.ErrorContext
	if healSimulate {
		ec = a.capture.FromError(ctx, simulateFailure(), "council heal --simulate", nil)
	} else {
		ec = a.capture.FromMessage(ctx, message, "", nil)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Asking the council for a fix...")
	rec, err := a.healer.Propose(ctx, ec)
	if err != nil {
		if isHealingFailure(err) {
			fmt.Fprintln(out, errorColor.Sprint(err.Error()))
		}
		return err
	}
	printHealingRecord(out, rec, a.protect)

	approve := healYes
	if !approve {
		approve = confirm(cmd.InOrStdin(), out, "Apply this fix? (yes/no) ", a.cfg.Council.ConfirmPhrase)
	}
	if !approve {
		if err := a.healer.Reject(rec.ID); err != nil {
			return err
		}
		fmt.Fprintln(out, "Proposal rejected. No changes were made.")
		return nil
	}

	result, err := a.healer.Approve(ctx, rec.ID, "")
	if result != nil {
		printFixResult(out, result)
	}
	if err != nil {
		return err
	}
	if !result.Applied || !result.TestsPassed() {
		return fmt.Errorf("fix was not applied cleanly")
	}
	return nil
}

// confirm asks until it reads a yes or no answer. End of input counts as no.
func confirm(in io.Reader, out io.Writer, question, phrase string) bool {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, question)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return false
		}
		switch council.ParseDecision(scanner.Text(), phrase) {
		case council.DecisionApprove:
			return true
		case council.DecisionReject:
			return false
		}
	}
}

// simulateFailure returns an error carrying the stack of a failed write.
func simulateFailure() error {
	return errors.Wrap(writeReport(context.Background()), "simulated failure")
}

func writeReport(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("report directory is read-only")
}
