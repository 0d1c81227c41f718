package healing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/council/internal/audit"
	"github.com/ShayCichocki/council/internal/changeset"
	"github.com/ShayCichocki/council/internal/council"
	"github.com/ShayCichocki/council/internal/exec"
	"github.com/ShayCichocki/council/internal/git"
	"github.com/ShayCichocki/council/internal/proposal"
	"github.com/ShayCichocki/council/internal/selfimprove"
)

// DefaultBranchPrefix names healing branches.
const DefaultBranchPrefix = "self-heal/fix"

// ErrUnknownProposal is returned for ids that are not pending.
var ErrUnknownProposal = errors.New("unknown healing proposal")

// GenerationError wraps any failure while building a proposal.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "self-healing failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Deliberator runs the council. *council.Pipeline implements it.
type Deliberator interface {
	Run(ctx context.Context, req council.Request) *council.Result
}

// Record is a proposal awaiting review.
type Record struct {
	ID              int                   `json:"id"`
	Proposal        *Proposal             `json:"proposal"`
	ErrorContext    *ErrorContext         `json:"error_context"`
	StackSummary    []string              `json:"stack_summary"`
	DiffSummary     changeset.DiffSummary `json:"diff_summary"`
	ProposalSummary string                `json:"proposal_summary"`
}

// TestResult is the outcome of one test command.
type TestResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"returncode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Error    string `json:"error,omitempty"`
}

// Passed reports whether the command ran and exited zero.
func (t TestResult) Passed() bool {
	return t.Error == "" && t.ExitCode == 0
}

// FixResult describes an apply attempt.
type FixResult struct {
	Applied   bool         `json:"applied"`
	Reason    string       `json:"reason,omitempty"`
	Branch    string       `json:"branch,omitempty"`
	Tests     []TestResult `json:"tests"`
	Committed bool         `json:"committed"`
}

// TestsPassed reports whether every test that ran passed.
func (r *FixResult) TestsPassed() bool {
	for _, t := range r.Tests {
		if !t.Passed() {
			return false
		}
	}
	return true
}

// Config configures an Orchestrator.
type Config struct {
	Root         string
	BranchPrefix string
	DefaultTests []string
	// RunTests runs the proposal's test commands after patching.
	RunTests bool
	// AutoCommit commits the patch when every test passes.
	AutoCommit bool
	Council    Deliberator
	Git        git.Runner
	Commands   exec.CommandRunner
	Audit      *audit.Log
	Logger     *zap.Logger
}

// Orchestrator drives healing proposals from capture to apply. Ids come
// from one in-process counter; a single interactive session is assumed.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	nextID  int
	records map[int]*Record
}

// NewOrchestrator creates a healing orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = DefaultBranchPrefix
	}
	if len(cfg.DefaultTests) == 0 {
		cfg.DefaultTests = DefaultTests
	}
	if cfg.Commands == nil {
		cfg.Commands = exec.NewRunner()
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  cfg.Logger,
		now:     time.Now,
		nextID:  1,
		records: make(map[int]*Record),
	}
}

// Generate asks the council for a diagnosis of ec, then for a critique of
// that diagnosis. A failed critique leaves SelfCritique empty.
func (o *Orchestrator) Generate(ctx context.Context, ec *ErrorContext) (*Proposal, error) {
	res := o.cfg.Council.Run(ctx, council.Request{Prompt: BuildPrompt(ec), SkipGate: true, Diagnostic: true})
	if res.Failed() {
		return nil, errors.New(res.Error)
	}
	if len(res.Stages) == 0 {
		return nil, errors.New("council returned no output")
	}

	p := ParseProposal(res.Stages[len(res.Stages)-1].Output, res.StageOutputs(), o.cfg.DefaultTests)

	critique := o.cfg.Council.Run(ctx, council.Request{Prompt: CritiquePrompt(ec, p), SkipGate: true, Diagnostic: true})
	if critique.Failed() || len(critique.Stages) == 0 {
		o.logger.Warn("self-critique failed", zap.String("error", critique.Error))
	} else {
		p.SelfCritique = strings.TrimSpace(critique.Stages[len(critique.Stages)-1].Output)
	}
	return p, nil
}

// Propose generates a proposal for ec, registers it for review and writes
// a pending audit entry. Every failure is returned as *GenerationError.
func (o *Orchestrator) Propose(ctx context.Context, ec *ErrorContext) (rec *Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, &GenerationError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	p, err := o.Generate(ctx, ec)
	if err != nil {
		o.logger.Warn("healing proposal generation failed", zap.Error(err))
		return nil, &GenerationError{Err: err}
	}

	o.mu.Lock()
	rec = &Record{
		ID:              o.nextID,
		Proposal:        p,
		ErrorContext:    ec,
		StackSummary:    ec.StackSummary(),
		DiffSummary:     changeset.Summarize(p.UnifiedDiff),
		ProposalSummary: proposal.OneSentence(p.RootCause, "No root cause identified."),
	}
	o.nextID++
	o.records[rec.ID] = rec
	o.mu.Unlock()

	o.record(rec, audit.StatusPending)
	o.logger.Info("healing proposal registered", zap.Int("id", rec.ID), zap.Int("files", len(rec.DiffSummary.Files)))
	return rec, nil
}

// Pending lists proposals awaiting review, by id.
func (o *Orchestrator) Pending() []*Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Record, 0, len(o.records))
	for _, r := range o.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the pending record with id.
func (o *Orchestrator) Get(id int) (*Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.records[id]
	return r, ok
}

func (o *Orchestrator) take(id int) (*Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProposal, id)
	}
	delete(o.records, id)
	return r, nil
}

// Approve applies the pending proposal id. The outcome is logged as
// applied only when the patch applied, every test passed and any commit
// succeeded; anything else is failed_apply. The working tree is not rolled
// back on failure.
func (o *Orchestrator) Approve(ctx context.Context, id int, message string) (*FixResult, error) {
	rec, err := o.take(id)
	if err != nil {
		return nil, err
	}
	o.record(rec, audit.StatusApproved)

	if message == "" {
		message = "Self-heal: " + rec.ProposalSummary
	}
	result, err := o.ApplyFix(ctx, rec.Proposal, message)
	if err == nil && result.Applied && result.TestsPassed() {
		o.record(rec, audit.StatusApplied)
	} else {
		o.record(rec, audit.StatusFailedApply)
	}
	return result, err
}

// Reject discards the pending proposal id.
func (o *Orchestrator) Reject(id int) error {
	rec, err := o.take(id)
	if err != nil {
		return err
	}
	o.record(rec, audit.StatusRejected)
	o.logger.Info("healing proposal rejected", zap.Int("id", id))
	return nil
}

// ApplyFix creates a branch, applies the patch and runs the proposal's
// tests fail-fast. A proposal without a diff is refused before any git
// command runs. With AutoCommit the patch is committed only when every
// test passed.
func (o *Orchestrator) ApplyFix(ctx context.Context, p *Proposal, message string) (*FixResult, error) {
	result := &FixResult{Tests: []TestResult{}}
	if !p.HasDiff() {
		result.Reason = "No diff supplied in proposal."
		return result, nil
	}

	branch, err := o.cfg.Git.CreateUniqueBranch(ctx, selfimprove.BranchName(o.cfg.BranchPrefix, o.now()))
	if err != nil {
		result.Reason = err.Error()
		return result, fmt.Errorf("create branch: %w", err)
	}
	result.Branch = branch

	if err := o.cfg.Git.ApplyPatch(ctx, p.UnifiedDiff); err != nil {
		result.Reason = err.Error()
		return result, fmt.Errorf("apply patch: %w", err)
	}
	result.Applied = true

	if o.cfg.RunTests {
		result.Tests = o.RunTests(ctx, p.Tests)
	}

	if o.cfg.AutoCommit && result.TestsPassed() {
		if err := o.cfg.Git.CommitPaths(ctx, message, nil); err != nil {
			result.Reason = err.Error()
			return result, fmt.Errorf("commit fix: %w", err)
		}
		result.Committed = true
	}

	o.logger.Info("healing fix applied",
		zap.String("branch", branch),
		zap.Int("tests_run", len(result.Tests)),
		zap.Bool("tests_passed", result.TestsPassed()),
		zap.Bool("committed", result.Committed))
	return result, nil
}

// RunTests runs commands in order through the shell and stops at the first
// one that fails or cannot be started.
func (o *Orchestrator) RunTests(ctx context.Context, commands []string) []TestResult {
	results := make([]TestResult, 0, len(commands))
	for _, command := range commands {
		res, err := o.cfg.Commands.RunShell(ctx, o.cfg.Root, command)
		if err != nil {
			results = append(results, TestResult{Command: command, ExitCode: -1, Error: err.Error()})
			break
		}
		tr := TestResult{
			Command:  command,
			ExitCode: res.ExitCode,
			Stdout:   strings.TrimSpace(res.Stdout),
			Stderr:   strings.TrimSpace(res.Stderr),
		}
		results = append(results, tr)
		if !tr.Passed() {
			break
		}
	}
	return results
}

func (o *Orchestrator) record(rec *Record, status audit.Status) {
	if o.cfg.Audit == nil {
		return
	}
	err := o.cfg.Audit.Append(audit.NewEntry(audit.EntryParams{
		ErrorMessage:    rec.ErrorContext.ErrorMessage,
		StackSummary:    rec.StackSummary,
		ProposalID:      strconv.Itoa(rec.ID),
		ProposalSummary: rec.ProposalSummary,
		FilesChanged:    rec.DiffSummary.Files,
		LOCChanged:      rec.DiffSummary.LOCChanged,
		Status:          status,
		Now:             o.now(),
	}))
	if err != nil {
		o.logger.Warn("failed to write audit entry", zap.Int("id", rec.ID), zap.Error(err))
	}
}
