package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete steward configuration
type Config struct {
	Backend      BackendConfig      `mapstructure:"backend"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Evaluation   EvaluationConfig   `mapstructure:"evaluation"`
	Consensus    ConsensusConfig    `mapstructure:"consensus"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Checks       ChecksConfig       `mapstructure:"checks"`
	Events       EventsConfig       `mapstructure:"events"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Paths        PathsConfig        `mapstructure:"paths"`
}

// BackendConfig controls how the external agent backend is invoked
type BackendConfig struct {
	// Command is the executable used to reach the agent backend
	Command string `mapstructure:"command"`
	// Args are extra arguments prepended before the per-call prompt flags
	Args []string `mapstructure:"args"`
	// TimeoutMinutes is the per-call timeout in minutes (0 = no timeout)
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	// MaxRetries is the retry budget for a single backend call
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBackoffMs is the base backoff between retries in milliseconds.
	// Backoff doubles on each attempt.
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// AnalysisConfig controls dependency analysis behavior
type AnalysisConfig struct {
	// AmbiguityCeiling rejects specifications whose ambiguity score exceeds
	// this value (range 0.0-1.0)
	AmbiguityCeiling float64 `mapstructure:"ambiguity_ceiling"`
	// AllowDegraded permits falling back to single-level sequential execution
	// when dependency inference fails
	AllowDegraded bool `mapstructure:"allow_degraded"`
}

// ExecutionConfig controls work-item execution behavior
type ExecutionConfig struct {
	// MaxParallel is the maximum number of items executed concurrently within
	// a level (0 = unbounded)
	MaxParallel int `mapstructure:"max_parallel"`
	// Decompose enables splitting oversized items into sub-items
	Decompose bool `mapstructure:"decompose"`
	// MinSubItems and MaxSubItems bound the size of a decomposition
	MinSubItems int `mapstructure:"min_sub_items"`
	MaxSubItems int `mapstructure:"max_sub_items"`
}

// EvaluationConfig controls the evaluation pipeline
type EvaluationConfig struct {
	// SatisfactionThreshold is the minimum semantic satisfaction score for a
	// stage-two pass (range 0.0-1.0)
	SatisfactionThreshold float64 `mapstructure:"satisfaction_threshold"`
	// DriftThreshold triggers consensus review when weighted drift exceeds it
	DriftThreshold float64 `mapstructure:"drift_threshold"`
	// UncertaintyThreshold triggers consensus review when the semantic
	// evaluator's self-reported uncertainty exceeds it
	UncertaintyThreshold float64 `mapstructure:"uncertainty_threshold"`
	// MaxRetries is how many times a failed or unparseable semantic
	// evaluator call is retried before the item's attempt errors
	MaxRetries int `mapstructure:"max_retries"`
}

// ConsensusConfig controls the multi-perspective review session
type ConsensusConfig struct {
	// Enabled allows disabling consensus entirely; triggered items are then
	// resolved by the stage-two verdict
	Enabled bool `mapstructure:"enabled"`
	// ReducedConfidencePenalty is subtracted from the judge's confidence when
	// one of the advocate or critic voices failed to respond
	ReducedConfidencePenalty float64 `mapstructure:"reduced_confidence_penalty"`
}

// OrchestratorConfig controls the run loop
type OrchestratorConfig struct {
	// MaxItemAttempts is how many times a failing item is re-executed before
	// it is marked failed (includes the first attempt)
	MaxItemAttempts int `mapstructure:"max_item_attempts"`
	// ContinueOnFailure keeps executing levels whose items do not depend on a
	// failed item
	ContinueOnFailure bool `mapstructure:"continue_on_failure"`
}

// ChecksConfig controls mechanical verification commands
type ChecksConfig struct {
	// Commands are shell commands run against the workspace during stage-one
	// evaluation, in order
	Commands []CheckCommand `mapstructure:"commands"`
	// TimeoutSeconds is the per-command timeout
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// CheckCommand is a single named mechanical check
type CheckCommand struct {
	Name    string   `mapstructure:"name"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// EventsConfig controls the run event log
type EventsConfig struct {
	// Store selects the event persistence backend: "jsonl", "sqlite", or "none"
	Store string `mapstructure:"store"`
	// Console mirrors events to stdout as they are emitted
	Console bool `mapstructure:"console"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is active
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
}

// PathsConfig controls where steward stores run state
type PathsConfig struct {
	// RunDir is the directory for run state (logs, event stores, reports).
	// Empty means .steward/runs under the workspace.
	RunDir string `mapstructure:"run_dir"`
}

// ResolveRunDir returns the resolved run directory path.
// If RunDir is empty, it returns the default path relative to baseDir.
// If RunDir starts with ~, it expands to the user's home directory.
// If RunDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveRunDir(baseDir string) string {
	if p.RunDir == "" {
		return filepath.Join(baseDir, ".steward", "runs")
	}

	path := p.RunDir

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Command:        "claude",
			Args:           []string{"-p"},
			TimeoutMinutes: 15,
			MaxRetries:     2,
			RetryBackoffMs: 500,
		},
		Analysis: AnalysisConfig{
			AmbiguityCeiling: 0.7,
			AllowDegraded:    true,
		},
		Execution: ExecutionConfig{
			MaxParallel: 4,
			Decompose:   true,
			MinSubItems: 2,
			MaxSubItems: 5,
		},
		Evaluation: EvaluationConfig{
			SatisfactionThreshold: 0.8,
			DriftThreshold:        0.3,
			UncertaintyThreshold:  0.3,
			MaxRetries:            2,
		},
		Consensus: ConsensusConfig{
			Enabled:                  true,
			ReducedConfidencePenalty: 0.2,
		},
		Orchestrator: OrchestratorConfig{
			MaxItemAttempts:   3,
			ContinueOnFailure: true,
		},
		Checks: ChecksConfig{
			Commands:       []CheckCommand{},
			TimeoutSeconds: 300,
		},
		Events: EventsConfig{
			Store:   "jsonl",
			Console: true,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Paths: PathsConfig{
			RunDir: "",
		},
	}
}

// Timeout returns the backend call timeout as a time.Duration (0 means disabled)
func (c *BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// RetryBackoff returns the base retry backoff as a time.Duration
func (c *BackendConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// CheckTimeout returns the per-check timeout as a time.Duration
func (c *ChecksConfig) CheckTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Backend defaults
	viper.SetDefault("backend.command", defaults.Backend.Command)
	viper.SetDefault("backend.args", defaults.Backend.Args)
	viper.SetDefault("backend.timeout_minutes", defaults.Backend.TimeoutMinutes)
	viper.SetDefault("backend.max_retries", defaults.Backend.MaxRetries)
	viper.SetDefault("backend.retry_backoff_ms", defaults.Backend.RetryBackoffMs)

	// Analysis defaults
	viper.SetDefault("analysis.ambiguity_ceiling", defaults.Analysis.AmbiguityCeiling)
	viper.SetDefault("analysis.allow_degraded", defaults.Analysis.AllowDegraded)

	// Execution defaults
	viper.SetDefault("execution.max_parallel", defaults.Execution.MaxParallel)
	viper.SetDefault("execution.decompose", defaults.Execution.Decompose)
	viper.SetDefault("execution.min_sub_items", defaults.Execution.MinSubItems)
	viper.SetDefault("execution.max_sub_items", defaults.Execution.MaxSubItems)

	// Evaluation defaults
	viper.SetDefault("evaluation.satisfaction_threshold", defaults.Evaluation.SatisfactionThreshold)
	viper.SetDefault("evaluation.drift_threshold", defaults.Evaluation.DriftThreshold)
	viper.SetDefault("evaluation.uncertainty_threshold", defaults.Evaluation.UncertaintyThreshold)
	viper.SetDefault("evaluation.max_retries", defaults.Evaluation.MaxRetries)

	// Consensus defaults
	viper.SetDefault("consensus.enabled", defaults.Consensus.Enabled)
	viper.SetDefault("consensus.reduced_confidence_penalty", defaults.Consensus.ReducedConfidencePenalty)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.max_item_attempts", defaults.Orchestrator.MaxItemAttempts)
	viper.SetDefault("orchestrator.continue_on_failure", defaults.Orchestrator.ContinueOnFailure)

	// Checks defaults
	viper.SetDefault("checks.commands", defaults.Checks.Commands)
	viper.SetDefault("checks.timeout_seconds", defaults.Checks.TimeoutSeconds)

	// Events defaults
	viper.SetDefault("events.store", defaults.Events.Store)
	viper.SetDefault("events.console", defaults.Events.Console)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	// Paths defaults
	viper.SetDefault("paths.run_dir", defaults.Paths.RunDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "steward")
	}
	// Fall back to ~/.config/steward
	home, err := os.UserHomeDir()
	if err != nil {
		return ".steward"
	}
	return filepath.Join(home, ".config", "steward")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidEventStores returns the list of valid event store values
func ValidEventStores() []string {
	return []string{"jsonl", "sqlite", "none"}
}

// IsValidEventStore checks if the given store is valid
func IsValidEventStore(store string) bool {
	for _, valid := range ValidEventStores() {
		if store == valid {
			return true
		}
	}
	return false
}
