package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ShayCichocki/council/internal/council"
	"github.com/ShayCichocki/council/internal/healing"
	"github.com/ShayCichocki/council/internal/protect"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	stageColor   = color.New(color.FgMagenta, color.Bold)
	errorColor   = color.New(color.FgRed)
	hintColor    = color.New(color.FgYellow)
)

// printStatus prints a status line with a colored symbol.
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

// printResult renders a finished run. Stage output is skipped when it was
// already streamed. det may be nil.
func printResult(w io.Writer, res *council.Result, streamed bool, det *protect.Detector) {
	if res.Execution != nil {
		printExecution(w, res)
		return
	}

	if !streamed {
		for _, s := range res.Stages {
			fmt.Fprintf(w, "\n%s\n%s\n", stageColor.Sprintf("=== %s ===", s.Stage), strings.TrimSpace(s.Output))
		}
	}

	if res.Interrupted {
		printStatus(w, "⚠", "Run interrupted.", color.FgYellow)
		return
	}
	if res.Failed() {
		fmt.Fprintf(w, "\n%s\n", errorColor.Sprint(res.Error))
		return
	}

	fmt.Fprintf(w, "\n%s\n%s\n", headingColor.Sprint("=== FINAL COUNCIL ANSWER ==="), res.FinalAnswer)
	fmt.Fprintf(w, "\n%s\n%s\n", headingColor.Sprint("=== REASONING SUMMARY ==="), res.ReasoningSummary)

	if res.Proposal != nil && len(res.Proposal.FileChanges) > 0 {
		files := res.Proposal.Paths()
		fmt.Fprintf(w, "\nProposal touches %d file(s):\n", len(files))
		for _, f := range files {
			fmt.Fprintf(w, "  - %s\n", f)
		}
		printFindings(w, det, files)
		fmt.Fprintln(w, hintColor.Sprint("Apply this proposal? (yes/no)"))
	}
}

func printExecution(w io.Writer, res *council.Result) {
	exec := res.Execution
	if exec.Executed {
		printStatus(w, "✓", exec.Message, color.FgGreen)
		if exec.Branch != "" {
			fmt.Fprintf(w, "  branch: %s\n", exec.Branch)
		}
		if a := exec.Applied; a != nil && len(a.Placeholders) > 0 {
			fmt.Fprintf(w, "  placeholders left in: %s\n", strings.Join(a.Placeholders, ", "))
		}
		return
	}
	if res.Failed() {
		printStatus(w, "✗", exec.Message, color.FgRed)
		return
	}
	printStatus(w, "•", exec.Message, color.FgYellow)
}

// printHealingRecord renders a pending healing proposal for review. det
// may be nil.
func printHealingRecord(w io.Writer, rec *healing.Record, det *protect.Detector) {
	p := rec.Proposal
	fmt.Fprintf(w, "\n%s\n", headingColor.Sprintf("=== SELF-HEALING PROPOSAL #%d ===", rec.ID))
	fmt.Fprintf(w, "Error: %s\n", rec.ErrorContext.ErrorMessage)
	if len(rec.StackSummary) > 0 {
		fmt.Fprintln(w, "Stack:")
		for _, line := range rec.StackSummary {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintf(w, "\nRoot cause: %s\n", p.RootCause)
	fmt.Fprintf(w, "Risks: %s\n", p.Risks)
	if len(p.Tests) > 0 {
		fmt.Fprintf(w, "Tests: %s\n", strings.Join(p.Tests, "; "))
	}

	if p.HasDiff() {
		fmt.Fprintf(w, "\nFiles (%d, ~%d lines changed):\n", len(rec.DiffSummary.Files), rec.DiffSummary.LOCChanged)
		for _, f := range rec.DiffSummary.Files {
			fmt.Fprintf(w, "  - %s\n", f)
		}
		printFindings(w, det, rec.DiffSummary.Files)
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(p.UnifiedDiff))
	} else {
		fmt.Fprintln(w, "\nNo patch was proposed.")
	}

	if p.SelfCritique != "" {
		fmt.Fprintf(w, "\nSelf-critique:\n%s\n", strings.TrimSpace(p.SelfCritique))
	}
}

// printFindings warns about sensitive paths before an approval question.
func printFindings(w io.Writer, det *protect.Detector, paths []string) {
	if det == nil {
		return
	}
	for _, f := range det.Check(paths) {
		printStatus(w, "⚠", fmt.Sprintf("%s is sensitive (%s)", f.Path, f.Reason), color.FgYellow)
	}
}

// printFixResult renders the outcome of applying a healing proposal.
func printFixResult(w io.Writer, r *healing.FixResult) {
	if !r.Applied {
		printStatus(w, "✗", "Fix not applied: "+r.Reason, color.FgRed)
		return
	}
	printStatus(w, "✓", "Fix applied on branch "+r.Branch, color.FgGreen)
	for _, t := range r.Tests {
		if t.Passed() {
			printStatus(w, "  ✓", t.Command, color.FgGreen)
			continue
		}
		detail := t.Error
		if detail == "" {
			detail = fmt.Sprintf("exit %d", t.ExitCode)
		}
		printStatus(w, "  ✗", fmt.Sprintf("%s (%s)", t.Command, detail), color.FgRed)
	}
	if r.Committed {
		fmt.Fprintln(w, "  committed")
	} else {
		fmt.Fprintln(w, "  left uncommitted for review")
	}
}
