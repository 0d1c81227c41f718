package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/ShayCichocki/council/internal/council"
	"github.com/ShayCichocki/council/internal/healing"
	"github.com/ShayCichocki/council/internal/signals"
	"github.com/ShayCichocki/council/internal/version"
)

const replHelp = `Commands:
  exit, quit      leave the session
  pending         list healing proposals awaiting review
  approve <id>    apply a healing proposal
  reject <id>     discard a healing proposal
  heal            propose a fix for the last failure
  help            show this help
Anything else is sent to the council.`

// replCommand is a built-in loop command.
type replCommand struct {
	Name string
	ID   int
}

// parseCommand recognizes the loop's built-in commands. ok is false for
// ordinary prompts; "approve" and "reject" are commands only when followed
// by exactly one argument.
func parseCommand(line string) (cmd replCommand, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return replCommand{}, false, nil
	}
	name := strings.ToLower(fields[0])

	switch name {
	case "exit", "quit", "pending", "heal", "help":
		if len(fields) == 1 {
			return replCommand{Name: name}, true, nil
		}
	case "approve", "reject":
		if len(fields) != 2 {
			return replCommand{}, false, nil
		}
		id, err := strconv.Atoi(strings.TrimPrefix(fields[1], "#"))
		if err != nil || id <= 0 {
			return replCommand{Name: name}, true, fmt.Errorf("usage: %s <id>", name)
		}
		return replCommand{Name: name, ID: id}, true, nil
	}
	return replCommand{}, false, nil
}

// repl is one interactive session.
type repl struct {
	app      *app
	session  *council.Session
	in       *bufio.Scanner
	out      io.Writer
	stream   bool
	skipGate bool

	// lastFailure is offered to the healer by the heal command.
	lastFailure *healing.ErrorContext
}

func runInteractive(ctx context.Context) error {
	a, err := newApp(rootVerbose)
	if err != nil {
		return err
	}
	defer a.Close()

	r := &repl{
		app:      a,
		session:  council.NewSession(a.cfg.Council.HistoryMessages),
		in:       bufio.NewScanner(os.Stdin),
		out:      os.Stdout,
		stream:   rootStream,
		skipGate: rootSkipGate,
	}
	r.in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return r.loop(ctx)
}

func (r *repl) loop(ctx context.Context) error {
	fmt.Fprintf(r.out, "%s %s\n", headingColor.Sprint("LLM Council"), version.Get())
	fmt.Fprintf(r.out, "Backend %s, model %s. Type 'help' for commands, 'exit' to quit.\n",
		r.app.cfg.LLM.Backend, r.app.cfg.LLM.Model)

	for {
		fmt.Fprint(r.out, "\nYou: ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if done := r.turn(ctx, line); done {
			return nil
		}
	}
}

// turn handles one line of input and reports whether the session should
// end. A panic inside a turn is captured for healing instead of ending the
// session.
func (r *repl) turn(parent context.Context, line string) (done bool) {
	ctx, release := r.runContext(parent)
	defer release()
	defer func() {
		if v := recover(); v != nil {
			r.app.logger.Error("turn panicked", zap.Any("panic", v))
			r.lastFailure = r.app.capture.FromPanic(ctx, v, line, nil)
			fmt.Fprintln(r.out, errorColor.Sprintf("Internal error: %v", v))
			fmt.Fprintln(r.out, hintColor.Sprint("Type 'heal' to ask the council for a fix."))
		}
	}()

	if r.session.PendingHealingID != 0 {
		if r.answerHealing(ctx, line) {
			return false
		}
	}
	if r.session.PendingGatePrompt != "" {
		if r.answerGate(ctx, line) {
			return false
		}
	}

	cmd, ok, err := parseCommand(line)
	if err != nil {
		fmt.Fprintln(r.out, errorColor.Sprint(err.Error()))
		return false
	}
	if ok {
		return r.command(ctx, cmd)
	}

	r.ask(ctx, line)
	return false
}

// runContext scopes a turn: Ctrl+C or a stop signal file cancels only the
// turn in progress.
func (r *repl) runContext(parent context.Context) (context.Context, func()) {
	sigCtx, stopNotify := signal.NotifyContext(parent, os.Interrupt)
	ctx, release := signals.Watch(sigCtx, r.app.root, r.app.logger)
	return ctx, func() {
		release()
		stopNotify()
	}
}

func (r *repl) command(ctx context.Context, cmd replCommand) bool {
	switch cmd.Name {
	case "exit", "quit":
		fmt.Fprintln(r.out, "Goodbye.")
		return true
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "pending":
		r.listPending()
	case "approve":
		r.approveHealing(ctx, cmd.ID)
	case "reject":
		r.rejectHealing(cmd.ID)
	case "heal":
		r.heal(ctx)
	}
	return false
}

// ask sends a prompt to the council. With history the Curator answers
// first and the full council only convenes when it asks to; skipGate
// bypasses the Curator entirely. Self-improvement requests always get the
// full run so every stage uses its self-improvement template.
func (r *repl) ask(ctx context.Context, line string) {
	phrase := r.app.cfg.Council.ConfirmPhrase
	if r.session.PendingProposal != nil && council.ParseDecision(line, phrase) != council.DecisionNone {
		r.deliberate(ctx, line, true)
		return
	}
	if r.skipGate || !r.session.HasHistory() || r.app.pipeline.IsTrigger(line) {
		r.deliberate(ctx, line, r.skipGate)
		return
	}

	gate := r.app.pipeline.RunGate(ctx, council.GateRequest{
		Prompt:  r.session.ContextPrompt(line),
		Session: r.session,
		Sink:    r.sink(),
	})
	if gate.Error != "" {
		fmt.Fprintln(r.out, errorColor.Sprint(gate.Error))
		if ctx.Err() == nil {
			r.failed(ctx, gate.Error, line, map[string]string{string(council.StageCurator): ""})
		}
		return
	}
	if !r.stream {
		fmt.Fprintf(r.out, "\n%s\n%s\n", stageColor.Sprintf("=== %s ===", council.StageCurator), strings.TrimSpace(gate.Output))
	}
	if gate.AskingConfirmation {
		r.session.PendingGatePrompt = line
		return
	}
	r.session.Record(line, gate.Output)
}

// deliberate runs the pipeline on input and applies the result to the
// session.
func (r *repl) deliberate(ctx context.Context, input string, skipGate bool) {
	res := r.app.pipeline.Run(ctx, council.Request{
		Prompt:        input,
		ContextPrompt: r.session.ContextPrompt(input),
		SkipGate:      skipGate,
		Sink:          r.sink(),
		Session:       r.session,
	})
	printResult(r.out, res, r.stream, r.app.protect)
	r.session.Observe(input, res)

	if res.Failed() && !res.Interrupted && res.Execution == nil {
		r.failed(ctx, res.Error, input, res.StageOutputs())
	}
}

func (r *repl) failed(ctx context.Context, message, prompt string, state map[string]string) {
	r.lastFailure = r.app.capture.FromMessage(ctx, message, prompt, state)
	fmt.Fprintln(r.out, hintColor.Sprint("Type 'heal' to ask the council for a fix."))
}

// answerGate resolves a pending Curator escalation. It reports whether
// line was consumed as the answer.
func (r *repl) answerGate(ctx context.Context, line string) bool {
	prompt := r.session.PendingGatePrompt
	r.session.ClearGate()

	switch council.ParseDecision(line, r.app.cfg.Council.ConfirmPhrase) {
	case council.DecisionApprove:
		r.deliberate(ctx, prompt, true)
		return true
	case council.DecisionReject:
		fmt.Fprintln(r.out, "Okay, the full council will not convene.")
		return true
	}
	return false
}

// answerHealing resolves the healing proposal offered last. It reports
// whether line was consumed as the answer.
func (r *repl) answerHealing(ctx context.Context, line string) bool {
	id := r.session.PendingHealingID
	r.session.ClearHealing()

	switch council.ParseDecision(line, r.app.cfg.Council.ConfirmPhrase) {
	case council.DecisionApprove:
		r.approveHealing(ctx, id)
		return true
	case council.DecisionReject:
		r.rejectHealing(id)
		return true
	}
	fmt.Fprintf(r.out, "Healing proposal #%d is still pending; use 'approve %d' or 'reject %d'.\n", id, id, id)
	return false
}

func (r *repl) heal(ctx context.Context) {
	if r.lastFailure == nil {
		fmt.Fprintln(r.out, "Nothing to heal: no failure has been captured in this session.")
		return
	}
	ec := r.lastFailure
	fmt.Fprintln(r.out, "Asking the council for a fix...")

	rec, err := r.app.healer.Propose(ctx, ec)
	if err != nil {
		fmt.Fprintln(r.out, errorColor.Sprint(err.Error()))
		return
	}
	r.lastFailure = nil
	printHealingRecord(r.out, rec, r.app.protect)
	r.session.PendingHealingID = rec.ID
	fmt.Fprintln(r.out, hintColor.Sprint("Apply this fix? (yes/no)"))
}

func (r *repl) approveHealing(ctx context.Context, id int) {
	result, err := r.app.healer.Approve(ctx, id, "")
	if result != nil {
		printFixResult(r.out, result)
	}
	if err != nil {
		fmt.Fprintln(r.out, errorColor.Sprint(err.Error()))
	}
}

func (r *repl) rejectHealing(id int) {
	if err := r.app.healer.Reject(id); err != nil {
		fmt.Fprintln(r.out, errorColor.Sprint(err.Error()))
		return
	}
	printStatus(r.out, "•", fmt.Sprintf("Healing proposal #%d rejected.", id), color.FgYellow)
}

func (r *repl) listPending() {
	if p := r.session.PendingProposal; p != nil {
		fmt.Fprintf(r.out, "Self-improvement proposal: %s (%d files) - answer yes/no\n",
			p.Description, len(p.FileChanges))
	}
	records := r.app.healer.Pending()
	if len(records) == 0 {
		fmt.Fprintln(r.out, "No healing proposals pending.")
		return
	}
	for _, rec := range records {
		fmt.Fprintf(r.out, "#%d  %s  (%d files, ~%d lines)\n",
			rec.ID, rec.ProposalSummary, len(rec.DiffSummary.Files), rec.DiffSummary.LOCChanged)
	}
}

func (r *repl) sink() council.Sink {
	if !r.stream {
		return nil
	}
	return streamSink(r.out)
}

// streamSink prints each stage heading and its fragments as they arrive.
func streamSink(w io.Writer) council.StreamSink {
	return council.StreamSink{
		OnStage: func(s council.Stage) {
			fmt.Fprintf(w, "\n%s\n", stageColor.Sprintf("=== %s ===", s))
		},
		OnFragment: func(_ council.Stage, fragment string) {
			fmt.Fprint(w, fragment)
		},
	}
}

// isHealingFailure reports whether err came from healing proposal
// generation.
func isHealingFailure(err error) bool {
	var genErr *healing.GenerationError
	return errors.As(err, &genErr)
}
