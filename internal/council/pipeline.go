package council

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/council/internal/api"
	"github.com/ShayCichocki/council/internal/proposal"
	"github.com/ShayCichocki/council/internal/selfimprove"
)

// DefaultProposalStages is the number of stages the self-improvement
// Planner is asked to produce.
const DefaultProposalStages = 5

// DefaultCodebaseFiles caps the file list given to self-improvement runs.
const DefaultCodebaseFiles = 200

// StageResult is one stage's raw output.
type StageResult struct {
	Stage  Stage  `json:"name"`
	Output string `json:"output"`
}

// Execution reports the outcome of acting on a pending proposal.
type Execution struct {
	Executed bool   `json:"executed"`
	Branch   string `json:"branch,omitempty"`
	Message  string `json:"message"`
	// Applied carries the full apply result when one was produced.
	Applied *selfimprove.ApplyResult `json:"-"`
}

// Result is the outcome of one pipeline run. It is never modified after
// Run returns.
type Result struct {
	ID               string             `json:"id"`
	Prompt           string             `json:"prompt"`
	Stages           []StageResult      `json:"agents"`
	FinalAnswer      string             `json:"final_answer,omitempty"`
	ReasoningSummary string             `json:"reasoning_summary,omitempty"`
	IsSelfImprove    bool               `json:"is_self_improve"`
	Proposal         *proposal.Proposal `json:"proposal,omitempty"`
	Execution        *Execution         `json:"execution,omitempty"`
	// Error is "<Stage> failed: <message>" when a stage failed.
	Error string `json:"error,omitempty"`
	// Interrupted is set when the caller cancelled the run.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Failed reports whether the run ended in an error.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// StageOutputs maps each executed stage to its output.
func (r *Result) StageOutputs() map[string]string {
	out := make(map[string]string, len(r.Stages))
	for _, s := range r.Stages {
		out[string(s.Stage)] = s.Output
	}
	return out
}

// Request is the input to Run.
type Request struct {
	Prompt string
	// ContextPrompt, when set, replaces Prompt as the topic shown to the
	// stages, typically Session.ContextPrompt(Prompt). Trigger detection
	// and Result.Prompt still use Prompt.
	ContextPrompt string
	// SkipGate starts the run at the Researcher.
	SkipGate bool
	// Sink defaults to BufferedSink.
	Sink Sink
	// Session is optional; it enables approval re-entry.
	Session *Session
	// Diagnostic marks internal runs such as healing diagnoses. They never
	// enter self-improvement mode and are not recorded.
	Diagnostic bool
}

// Recorder persists finished runs. Failures are logged and ignored.
type Recorder interface {
	RecordRun(ctx context.Context, r *Result) error
}

// ProposalApplier acts on an approved or declined self-improvement
// proposal.
type ProposalApplier interface {
	Apply(ctx context.Context, p *proposal.Proposal, message string) (*selfimprove.ApplyResult, error)
	Reject(ctx context.Context, p *proposal.Proposal) error
}

// Config tunes the pipeline. Zero values take the package defaults.
type Config struct {
	Roles                   Roles
	RequiredRecommendations int
	ProposalStages          int
	RationaleLimit          int
	SelfImproveTrigger      string
	// ConfirmPhrase approves a pending proposal in addition to yes/y.
	ConfirmPhrase string
	// ProjectRoot is described to self-improvement runs.
	ProjectRoot   string
	CodebaseFiles int
}

func (c Config) withDefaults() Config {
	if c.Roles == nil {
		c.Roles = DefaultRoles()
	}
	if c.RequiredRecommendations <= 0 {
		c.RequiredRecommendations = DefaultRecommendations
	}
	if c.ProposalStages <= 0 {
		c.ProposalStages = DefaultProposalStages
	}
	if c.RationaleLimit <= 0 {
		c.RationaleLimit = DefaultRationaleLimit
	}
	if c.SelfImproveTrigger == "" {
		c.SelfImproveTrigger = selfimprove.DefaultTrigger
	}
	if c.ProjectRoot == "" {
		c.ProjectRoot = "."
	}
	if c.CodebaseFiles <= 0 {
		c.CodebaseFiles = DefaultCodebaseFiles
	}
	return c
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder sets the run recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithApplier sets the proposal applier used on approval.
func WithApplier(a ProposalApplier) Option {
	return func(p *Pipeline) { p.applier = a }
}

// Pipeline runs council deliberations against one gateway. Stages within a
// run are strictly sequential; separate runs may proceed concurrently.
type Pipeline struct {
	gw       api.Gateway
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
	applier  ProposalApplier
	describe func(root string, maxFiles int) (string, error)
}

// New creates a pipeline.
func New(gw api.Gateway, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		gw:       gw,
		cfg:      cfg.withDefaults(),
		logger:   zap.NewNop(),
		describe: selfimprove.DescribeCodebase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one deliberation. Failures are reported in Result.Error;
// stages completed before a failure stay in Result.Stages unless the run
// was interrupted.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	res := &Result{
		ID:     uuid.New().String(),
		Prompt: req.Prompt,
		Stages: []StageResult{},
	}

	if p.reenter(ctx, req, res) {
		return res
	}

	res.IsSelfImprove = !req.Diagnostic && p.IsTrigger(req.Prompt)
	topic := req.Prompt
	if req.ContextPrompt != "" {
		topic = req.ContextPrompt
	}
	if res.IsSelfImprove {
		desc, err := p.describe(p.cfg.ProjectRoot, p.cfg.CodebaseFiles)
		if err != nil {
			p.logger.Warn("failed to describe codebase", zap.Error(err))
		} else {
			topic += "\n\n" + desc
		}
	}

	sink := req.Sink
	if sink == nil {
		sink = BufferedSink{}
	}

	stages := Stages
	if req.SkipGate {
		stages = Stages[1:]
	}

	for _, stage := range stages {
		out, err := p.runStage(ctx, sink, stage, res.IsSelfImprove, topic, res.Stages)
		if err != nil {
			res.Error = fmt.Sprintf("%s failed: %s", stage, err.Error())
			if errors.Is(err, context.Canceled) {
				res.Interrupted = true
				res.Stages = []StageResult{}
			}
			p.logger.Warn("council run failed",
				zap.String("run_id", res.ID),
				zap.String("stage", string(stage)),
				zap.Error(err))
			return res
		}
		res.Stages = append(res.Stages, StageResult{Stage: stage, Output: out})
	}

	judge := res.Stages[len(res.Stages)-1].Output
	if res.IsSelfImprove {
		res.Proposal = proposal.Parse(judge)
		res.FinalAnswer = res.Proposal.Description
		if res.FinalAnswer == "" {
			res.FinalAnswer = strings.TrimSpace(judge)
		}
		res.ReasoningSummary = res.Proposal.Impact
		if res.ReasoningSummary == "" {
			res.ReasoningSummary = rationaleSynthesized
		}
	} else {
		answer, rationale := ParseSynthesis(judge, p.cfg.RationaleLimit)
		res.FinalAnswer = EnsureRecommendations(answer, p.cfg.RequiredRecommendations)
		res.ReasoningSummary = rationale
	}
	if res.FinalAnswer == "" {
		res.FinalAnswer = "The council produced no answer."
	}

	p.logger.Info("council run completed",
		zap.String("run_id", res.ID),
		zap.Int("stages", len(res.Stages)),
		zap.Bool("self_improve", res.IsSelfImprove))

	if p.recorder != nil && !req.Diagnostic {
		if err := p.recorder.RecordRun(ctx, res); err != nil {
			p.logger.Warn("failed to record run", zap.String("run_id", res.ID), zap.Error(err))
		}
	}
	return res
}

// IsTrigger reports whether input switches a run into self-improvement
// mode.
func (p *Pipeline) IsTrigger(input string) bool {
	return selfimprove.IsTrigger(input, p.cfg.SelfImproveTrigger)
}

// reenter handles an approval answer for a pending proposal. It reports
// whether the request was consumed; no stage runs in that case.
func (p *Pipeline) reenter(ctx context.Context, req Request, res *Result) bool {
	s := req.Session
	if s == nil || s.PendingProposal == nil {
		return false
	}
	decision := ParseDecision(req.Prompt, p.cfg.ConfirmPhrase)
	if decision == DecisionNone {
		return false
	}

	res.IsSelfImprove = true
	res.Proposal = s.PendingProposal
	exec := &Execution{}
	res.Execution = exec

	if p.applier == nil {
		res.Error = "no proposal applier configured"
		exec.Message = res.Error
		return true
	}

	switch decision {
	case DecisionApprove:
		applied, err := p.applier.Apply(ctx, s.PendingProposal, "")
		exec.Applied = applied
		if applied != nil {
			exec.Branch = applied.Branch
		}
		if err != nil {
			res.Error = "Self-improvement failed: " + err.Error()
			exec.Message = res.Error
			p.logger.Warn("proposal apply failed", zap.Error(err))
			return true
		}
		exec.Executed = true
		exec.Message = applied.Message
	case DecisionReject:
		if err := p.applier.Reject(ctx, s.PendingProposal); err != nil {
			p.logger.Warn("failed to record proposal rejection", zap.Error(err))
		}
		exec.Message = "Proposal rejected. No changes were made."
	}
	res.FinalAnswer = exec.Message
	return true
}

// runStage is the single stage-execution routine shared by every mode.
func (p *Pipeline) runStage(ctx context.Context, sink Sink, stage Stage, selfImprove bool, topic string, prior []StageResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.logger.Debug("stage started", zap.String("stage", string(stage)), zap.String("backend", p.gw.Name()))

	instruction := p.cfg.Roles.instruction(stage, selfImprove, p.cfg.RequiredRecommendations, p.cfg.ProposalStages)
	req := api.Request{Messages: []api.Message{
		api.System(instruction),
		api.User(stageContext(prior, topic)),
	}}

	out, err := sink.Collect(ctx, p.gw, stage, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// stageContext lists earlier contributions, headed by stage name, followed
// by the topic.
func stageContext(prior []StageResult, topic string) string {
	var b strings.Builder
	if len(prior) > 0 {
		b.WriteString("Council contributions so far:\n\n")
		for _, sr := range prior {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", sr.Stage, sr.Output)
		}
	}
	b.WriteString("Topic: ")
	b.WriteString(topic)
	return b.String()
}

// RunAsync runs the pipeline on its own goroutine and waits for it, so a
// request handler can give up when its context ends. The run shares ctx
// and stops at its next stage boundary or gateway call.
func (p *Pipeline) RunAsync(ctx context.Context, req Request) (*Result, error) {
	done := make(chan *Result, 1)
	go func() {
		done <- p.Run(ctx, req)
	}()

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
