// Package config handles configuration loading and management for the
// council. It supports XDG config paths, project-level overrides, a .env
// file and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the council.
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"`
	Council     CouncilConfig     `mapstructure:"council"`
	SelfImprove SelfImproveConfig `mapstructure:"self_improve"`
	Healing     HealingConfig     `mapstructure:"healing"`
	Server      ServerConfig      `mapstructure:"server"`
	State       StateConfig       `mapstructure:"state"`
	Log         LogConfig         `mapstructure:"log"`
}

// LLMConfig selects and tunes the completion backend.
type LLMConfig struct {
	// Backend is one of ollama, anthropic or bedrock.
	Backend     string        `mapstructure:"backend"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	AWSRegion   string        `mapstructure:"aws_region"`
	AWSProfile  string        `mapstructure:"aws_profile"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CouncilConfig tunes the deliberation pipeline.
type CouncilConfig struct {
	RequiredRecommendations int    `mapstructure:"required_recommendations"`
	RationaleLimit          int    `mapstructure:"rationale_limit"`
	HistoryMessages         int    `mapstructure:"history_messages"`
	RolesFile               string `mapstructure:"roles_file"`
	ConfirmPhrase           string `mapstructure:"confirm_phrase"`
}

// SelfImproveConfig holds self-improvement settings.
type SelfImproveConfig struct {
	Trigger        string `mapstructure:"trigger"`
	ProposalStages int    `mapstructure:"proposal_stages"`
	BranchPrefix   string `mapstructure:"branch_prefix"`
	AutoCommit     bool   `mapstructure:"auto_commit"`
	CodebaseFiles  int    `mapstructure:"codebase_files"`
}

// HealingConfig holds self-healing settings.
type HealingConfig struct {
	BranchPrefix string   `mapstructure:"branch_prefix"`
	Tests        []string `mapstructure:"tests"`
	RunTests     bool     `mapstructure:"run_tests"`
	AutoCommit   bool     `mapstructure:"auto_commit"`
	AuditLog     string   `mapstructure:"audit_log"`
}

// ServerConfig holds HTTP adapter settings.
type ServerConfig struct {
	Addr              string `mapstructure:"addr"`
	MaxConcurrentRuns int    `mapstructure:"max_concurrent_runs"`
}

// StateConfig locates the run-history database.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Debug bool   `mapstructure:"debug"`
	Path  string `mapstructure:"path"`
}

// Backends accepted by llm.backend.
var Backends = []string{"ollama", "anthropic", "bedrock"}

// envBindings maps config keys to the environment variables that override
// them.
var envBindings = map[string]string{
	"llm.backend":       "LLM_BACKEND",
	"llm.model":         "LLM_MODEL",
	"llm.base_url":      "LLM_BASE_URL",
	"llm.temperature":   "LLM_TEMPERATURE",
	"llm.max_tokens":    "LLM_MAX_TOKENS",
	"llm.timeout":       "LLM_TIMEOUT",
	"llm.api_key":       "ANTHROPIC_API_KEY",
	"llm.aws_region":    "AWS_REGION",
	"healing.audit_log": "COUNCIL_AUDIT_LOG",
}

// Load loads configuration from XDG paths, project overrides, a .env file
// and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (including values from .env)
// 2. Project config (.council.yaml in current directory or parent)
// 3. User config (~/.config/council/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// Get returns the effective value of a single key.
func Get(key string) (any, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	if !isKnownKey(key) {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return v.Get(key), nil
}

func newViper() (*viper.Viper, error) {
	if err := loadDotenv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)
	return v, nil
}

// loadDotenv loads path into the process environment when it exists.
// Variables already set are not overridden.
func loadDotenv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func bindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
// Environment bindings still apply.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)
	return unmarshal(v)
}

// Validate checks backend names and counts.
func (c *Config) Validate() error {
	known := false
	for _, b := range Backends {
		if c.LLM.Backend == b {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("llm.backend %q is not one of %s", c.LLM.Backend, strings.Join(Backends, ", "))
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	if c.Council.RequiredRecommendations <= 0 {
		return fmt.Errorf("council.required_recommendations must be > 0")
	}
	if c.Council.RationaleLimit <= 0 {
		return fmt.Errorf("council.rationale_limit must be > 0")
	}
	if c.Council.HistoryMessages <= 0 {
		return fmt.Errorf("council.history_messages must be > 0")
	}
	if c.SelfImprove.ProposalStages <= 0 {
		return fmt.Errorf("self_improve.proposal_stages must be > 0")
	}
	if c.Server.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("server.max_concurrent_runs must be > 0")
	}
	return nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(GetUserConfigPath())

	v.Set("llm.backend", cfg.LLM.Backend)
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.base_url", cfg.LLM.BaseURL)
	v.Set("llm.api_key", cfg.LLM.APIKey)
	v.Set("llm.aws_region", cfg.LLM.AWSRegion)
	v.Set("llm.aws_profile", cfg.LLM.AWSProfile)
	v.Set("llm.temperature", cfg.LLM.Temperature)
	v.Set("llm.max_tokens", cfg.LLM.MaxTokens)
	v.Set("llm.timeout", cfg.LLM.Timeout.String())
	v.Set("council.required_recommendations", cfg.Council.RequiredRecommendations)
	v.Set("council.rationale_limit", cfg.Council.RationaleLimit)
	v.Set("council.history_messages", cfg.Council.HistoryMessages)
	v.Set("council.roles_file", cfg.Council.RolesFile)
	v.Set("council.confirm_phrase", cfg.Council.ConfirmPhrase)
	v.Set("self_improve.trigger", cfg.SelfImprove.Trigger)
	v.Set("self_improve.proposal_stages", cfg.SelfImprove.ProposalStages)
	v.Set("self_improve.branch_prefix", cfg.SelfImprove.BranchPrefix)
	v.Set("self_improve.auto_commit", cfg.SelfImprove.AutoCommit)
	v.Set("self_improve.codebase_files", cfg.SelfImprove.CodebaseFiles)
	v.Set("healing.branch_prefix", cfg.Healing.BranchPrefix)
	v.Set("healing.tests", cfg.Healing.Tests)
	v.Set("healing.run_tests", cfg.Healing.RunTests)
	v.Set("healing.auto_commit", cfg.Healing.AutoCommit)
	v.Set("healing.audit_log", cfg.Healing.AuditLog)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.max_concurrent_runs", cfg.Server.MaxConcurrentRuns)
	v.Set("state.path", cfg.State.Path)
	v.Set("log.debug", cfg.Log.Debug)
	v.Set("log.path", cfg.Log.Path)

	return v.WriteConfig()
}

// SetValue sets a single key in the config file at path, creating the
// file if needed. Unknown keys are rejected.
func SetValue(path, key, value string) error {
	if !isKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config from %s: %w", path, err)
		}
	}
	v.Set(key, value)
	return v.WriteConfigAs(path)
}

// Keys returns every known config key in sorted order.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

func isKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("llm.backend", d.LLM.Backend)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.aws_region", "")
	v.SetDefault("llm.aws_profile", "")
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout.String())

	v.SetDefault("council.required_recommendations", d.Council.RequiredRecommendations)
	v.SetDefault("council.rationale_limit", d.Council.RationaleLimit)
	v.SetDefault("council.history_messages", d.Council.HistoryMessages)
	v.SetDefault("council.roles_file", "")
	v.SetDefault("council.confirm_phrase", d.Council.ConfirmPhrase)

	v.SetDefault("self_improve.trigger", d.SelfImprove.Trigger)
	v.SetDefault("self_improve.proposal_stages", d.SelfImprove.ProposalStages)
	v.SetDefault("self_improve.branch_prefix", d.SelfImprove.BranchPrefix)
	v.SetDefault("self_improve.auto_commit", d.SelfImprove.AutoCommit)
	v.SetDefault("self_improve.codebase_files", d.SelfImprove.CodebaseFiles)

	v.SetDefault("healing.branch_prefix", d.Healing.BranchPrefix)
	v.SetDefault("healing.tests", d.Healing.Tests)
	v.SetDefault("healing.run_tests", d.Healing.RunTests)
	v.SetDefault("healing.auto_commit", d.Healing.AutoCommit)
	v.SetDefault("healing.audit_log", d.Healing.AuditLog)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_concurrent_runs", d.Server.MaxConcurrentRuns)

	v.SetDefault("state.path", d.State.Path)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.path", d.Log.Path)
}

// getUserConfigDir returns the XDG config directory for the council.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "council")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "council")
	}
	return filepath.Join(home, ".config", "council")
}

// findProjectConfig searches for .council.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".council.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Backend:     "ollama",
			Model:       "phi3:mini",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     30 * time.Minute,
		},
		Council: CouncilConfig{
			RequiredRecommendations: 4,
			RationaleLimit:          800,
			HistoryMessages:         8,
			ConfirmPhrase:           "approve",
		},
		SelfImprove: SelfImproveConfig{
			Trigger:        "self-improve",
			ProposalStages: 5,
			BranchPrefix:   "self-improve/proposal",
			AutoCommit:     true,
			CodebaseFiles:  200,
		},
		Healing: HealingConfig{
			BranchPrefix: "self-heal/fix",
			Tests:        []string{"go test ./..."},
			RunTests:     true,
			AutoCommit:   true,
			AuditLog:     ".council/healing_log.jsonl",
		},
		Server: ServerConfig{
			Addr:              ":8000",
			MaxConcurrentRuns: 1,
		},
		State: StateConfig{
			Path: ".council/state.db",
		},
		Log: LogConfig{
			Path: ".council/logs/council.log",
		},
	}
}
