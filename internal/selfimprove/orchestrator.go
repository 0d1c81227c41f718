package selfimprove

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/council/internal/audit"
	"github.com/ShayCichocki/council/internal/changeset"
	"github.com/ShayCichocki/council/internal/git"
	"github.com/ShayCichocki/council/internal/proposal"
)

// ErrNoFileChanges is returned when an approved proposal has nothing to write.
var ErrNoFileChanges = errors.New("proposal contains no file changes to apply")

// ApplyResult describes an applied proposal.
type ApplyResult struct {
	ProposalID   string            `json:"proposal_id"`
	Branch       string            `json:"branch"`
	Diffs        map[string]string `json:"diffs"`
	Placeholders []string          `json:"placeholders,omitempty"`
	LOCChanged   int               `json:"loc_changed"`
	Committed    bool              `json:"committed"`
	Message      string            `json:"message"`
}

// Config configures an Orchestrator.
type Config struct {
	// Root is the project root that proposals are applied to.
	Root string
	// BranchPrefix defaults to DefaultBranchPrefix.
	BranchPrefix string
	// AutoCommit commits exactly the changed paths after writing them.
	AutoCommit bool
	Git        git.Runner
	Audit      *audit.Log
	Logger     *zap.Logger
}

// Orchestrator applies or rejects self-improvement proposals. It assumes a
// single operator: nothing guards two applies racing on the working tree.
type Orchestrator struct {
	root         string
	branchPrefix string
	autoCommit   bool
	git          git.Runner
	applier      *changeset.Applier
	audit        *audit.Log
	logger       *zap.Logger
	now          func() time.Time
}

// NewOrchestrator creates a self-improvement orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.BranchPrefix
	if prefix == "" {
		prefix = DefaultBranchPrefix
	}
	return &Orchestrator{
		root:         cfg.Root,
		branchPrefix: prefix,
		autoCommit:   cfg.AutoCommit,
		git:          cfg.Git,
		applier:      changeset.NewApplier(cfg.Root, logger),
		audit:        cfg.Audit,
		logger:       logger,
		now:          time.Now,
	}
}

// Apply creates a fresh branch, writes the proposal's files and, when
// configured, commits them. On failure the working tree is left as it is
// for manual recovery; the returned result carries whatever was done.
func (o *Orchestrator) Apply(ctx context.Context, p *proposal.Proposal, message string) (*ApplyResult, error) {
	if p == nil || len(p.FileChanges) == 0 {
		return nil, ErrNoFileChanges
	}

	summary := proposal.OneSentence(p.Description, "Self-improvement proposal")
	if message == "" {
		message = "Self-improvement: " + summary
	}
	result := &ApplyResult{
		ProposalID:   "si-" + uuid.New().String()[:8],
		Placeholders: changeset.Placeholders(p.FileChanges),
	}

	o.record(result, summary, p.Paths(), estimateLines(p.FileChanges), audit.StatusApproved)

	branch, err := o.git.CreateUniqueBranch(ctx, BranchName(o.branchPrefix, o.now()))
	if err != nil {
		o.record(result, summary, p.Paths(), 0, audit.StatusFailedApply)
		return result, fmt.Errorf("create branch: %w", err)
	}
	result.Branch = branch

	diffs, err := o.applier.Apply(p.FileChanges)
	result.Diffs = diffs
	if err != nil {
		o.record(result, summary, p.Paths(), 0, audit.StatusFailedApply)
		return result, fmt.Errorf("apply changes: %w", err)
	}
	for _, counts := range changeset.SummarizeAll(diffs) {
		result.LOCChanged += counts.Added + counts.Removed
	}

	if o.autoCommit {
		if err := o.git.CommitPaths(ctx, message, p.Paths()); err != nil {
			o.record(result, summary, p.Paths(), result.LOCChanged, audit.StatusFailedApply)
			return result, fmt.Errorf("commit changes: %w", err)
		}
		result.Committed = true
	}

	o.record(result, summary, p.Paths(), result.LOCChanged, audit.StatusApplied)

	result.Message = fmt.Sprintf("Applied %d file(s) on branch %s", len(diffs), branch)
	if result.Committed {
		result.Message += " and committed"
	}
	if len(result.Placeholders) > 0 {
		result.Message += fmt.Sprintf(" (placeholder content in: %s)", strings.Join(result.Placeholders, ", "))
	}
	o.logger.Info("self-improvement proposal applied",
		zap.String("proposal_id", result.ProposalID),
		zap.String("branch", branch),
		zap.Int("files", len(diffs)),
		zap.Bool("committed", result.Committed))
	return result, nil
}

// Reject records the rejection of p.
func (o *Orchestrator) Reject(ctx context.Context, p *proposal.Proposal) error {
	if p == nil {
		return nil
	}
	summary := proposal.OneSentence(p.Description, "Self-improvement proposal")
	result := &ApplyResult{ProposalID: "si-" + uuid.New().String()[:8]}
	o.logger.Info("self-improvement proposal rejected", zap.String("proposal_id", result.ProposalID))
	return o.record(result, summary, p.Paths(), 0, audit.StatusRejected)
}

// record appends an audit entry. Audit failures are logged, not returned,
// except to Reject where the entry is the whole operation.
func (o *Orchestrator) record(r *ApplyResult, summary string, files []string, loc int, status audit.Status) error {
	if o.audit == nil {
		return nil
	}
	err := o.audit.Append(audit.NewEntry(audit.EntryParams{
		ErrorMessage:    "SelfImprovement: " + summary,
		ProposalID:      r.ProposalID,
		ProposalSummary: summary,
		FilesChanged:    files,
		LOCChanged:      loc,
		Status:          status,
		Now:             o.now(),
	}))
	if err != nil {
		o.logger.Warn("failed to write audit entry", zap.Error(err), zap.String("status", string(status)))
	}
	return err
}

// estimateLines counts the lines a change set would write.
func estimateLines(changes map[string]string) int {
	total := 0
	for _, content := range changes {
		if content == "" {
			continue
		}
		total += strings.Count(content, "\n")
		if !strings.HasSuffix(content, "\n") {
			total++
		}
	}
	return total
}
