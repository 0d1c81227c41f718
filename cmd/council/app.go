package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/council/internal/api"
	"github.com/ShayCichocki/council/internal/audit"
	"github.com/ShayCichocki/council/internal/config"
	"github.com/ShayCichocki/council/internal/council"
	"github.com/ShayCichocki/council/internal/exec"
	"github.com/ShayCichocki/council/internal/git"
	"github.com/ShayCichocki/council/internal/healing"
	"github.com/ShayCichocki/council/internal/logging"
	"github.com/ShayCichocki/council/internal/protect"
	"github.com/ShayCichocki/council/internal/selfimprove"
	"github.com/ShayCichocki/council/internal/state"
)

// app holds everything one CLI invocation needs.
type app struct {
	cfg      *config.Config
	root     string
	gateway  api.Gateway
	logger   *zap.Logger
	git      *git.ExecRunner
	audit    *audit.Log
	db       *state.DB
	pipeline *council.Pipeline
	improver *selfimprove.Orchestrator
	healer   *healing.Orchestrator
	capture  *healing.Capture
	protect  *protect.Detector
}

// newApp loads the configuration and wires the pipeline and orchestrators
// for the project containing the working directory.
func newApp(verbose bool) (*app, error) {
	cfg, root, err := loadProject()
	if err != nil {
		return nil, err
	}
	if err := config.CheckCredentials(cfg); err != nil {
		return nil, err
	}
	logger := openLogger(resolvePath(root, cfg.Log.Path), cfg.Log.Debug || verbose)

	gw, err := api.New(gatewayOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("create %s gateway: %w", cfg.LLM.Backend, err)
	}

	roles, err := council.LoadRoles(resolvePath(root, cfg.Council.RolesFile))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		root:    root,
		logger:  logger,
		gateway: gw,
		git:     git.NewRunner(root, exec.NewRunner()),
	}
	a.audit = audit.NewLog(resolvePath(root, cfg.Healing.AuditLog), logger)
	a.improver = selfimprove.NewOrchestrator(selfimprove.Config{
		Root:         root,
		BranchPrefix: cfg.SelfImprove.BranchPrefix,
		AutoCommit:   cfg.SelfImprove.AutoCommit,
		Git:          a.git,
		Audit:        a.audit,
		Logger:       logger,
	})

	opts := []council.Option{
		council.WithLogger(logger),
		council.WithApplier(a.improver),
	}
	if db, err := state.OpenStore(resolvePath(root, cfg.State.Path)); err != nil {
		logger.Warn("run history disabled", zap.Error(err))
	} else {
		a.db = db
		opts = append(opts, council.WithRecorder(db))
	}

	a.pipeline = council.New(gw, council.Config{
		Roles:                   roles,
		RequiredRecommendations: cfg.Council.RequiredRecommendations,
		ProposalStages:          cfg.SelfImprove.ProposalStages,
		RationaleLimit:          cfg.Council.RationaleLimit,
		SelfImproveTrigger:      cfg.SelfImprove.Trigger,
		ConfirmPhrase:           cfg.Council.ConfirmPhrase,
		ProjectRoot:             root,
		CodebaseFiles:           cfg.SelfImprove.CodebaseFiles,
	}, opts...)

	a.healer = healing.NewOrchestrator(healing.Config{
		Root:         root,
		BranchPrefix: cfg.Healing.BranchPrefix,
		DefaultTests: cfg.Healing.Tests,
		RunTests:     cfg.Healing.RunTests,
		AutoCommit:   cfg.Healing.AutoCommit,
		Council:      a.pipeline,
		Git:          a.git,
		Audit:        a.audit,
		Logger:       logger,
	})
	a.capture = healing.NewCapture(a.git)

	a.protect = protect.New()
	if path := config.GetProjectConfigPath(); path != "" {
		if err := a.protect.LoadConfig(path); err != nil {
			logger.Warn("ignoring protected_areas", zap.String("path", path), zap.Error(err))
		}
	}

	logger.Debug("council ready",
		zap.String("root", root),
		zap.String("backend", cfg.LLM.Backend),
		zap.String("model", cfg.LLM.Model))
	return a, nil
}

// loadProject loads and validates the configuration and locates the
// project root. Commands that never call a backend use it directly.
func loadProject() (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, projectRoot(), nil
}

// Close logs token usage, releases the database and flushes the logger.
func (a *app) Close() {
	if t, ok := a.gateway.(interface{ Tracker() *api.TokenTracker }); ok {
		in, out := t.Tracker().Total()
		a.logger.Info("token usage",
			zap.Int("calls", t.Tracker().Calls()),
			zap.Int64("input_tokens", in),
			zap.Int64("output_tokens", out))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close state db", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func openLogger(path string, debug bool) *zap.Logger {
	logger, err := logging.New(path, debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		return zap.NewNop()
	}
	return logger
}

// gatewayOptions maps the llm section onto gateway options. The Ollama
// model and URL defaults are dropped for the hosted backends so those pick
// their own.
func gatewayOptions(cfg *config.Config) api.Options {
	llm := cfg.LLM
	defaults := config.Default().LLM

	opts := api.Options{
		Backend:    llm.Backend,
		Model:      llm.Model,
		BaseURL:    llm.BaseURL,
		AWSRegion:  llm.AWSRegion,
		AWSProfile: llm.AWSProfile,
		Defaults: api.Defaults{
			MaxTokens:   llm.MaxTokens,
			Temperature: llm.Temperature,
			Timeout:     llm.Timeout,
		},
	}
	if llm.Backend == "" || strings.EqualFold(llm.Backend, api.BackendOllama) {
		return opts
	}

	if opts.Model == defaults.Model {
		opts.Model = ""
	}
	if opts.BaseURL == defaults.BaseURL {
		opts.BaseURL = ""
	}
	if strings.EqualFold(llm.Backend, api.BackendAnthropic) {
		if key, err := config.GetAPIKey(cfg); err == nil {
			opts.APIKey = key
		}
	}
	return opts
}

// projectRoot returns the enclosing git repository, or the working
// directory outside of one.
func projectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if root, err := findGitRoot(cwd); err == nil {
		return root
	}
	return cwd
}

// findGitRoot walks up from startDir to find the git repository root.
func findGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a git repository")
		}
		dir = parent
	}
}

// resolvePath anchors relative configured paths at the project root.
func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
