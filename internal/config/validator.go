package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "evaluation.drift_threshold")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateAnalysis()...)
	errors = append(errors, c.validateExecution()...)
	errors = append(errors, c.validateEvaluation()...)
	errors = append(errors, c.validateConsensus()...)
	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateChecks()...)
	errors = append(errors, c.validateEvents()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateBackend() []ValidationError {
	var errors []ValidationError

	if c.Backend.Command == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.command",
			Value:   c.Backend.Command,
			Message: "must not be empty",
		})
	}
	if c.Backend.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.timeout_minutes",
			Value:   c.Backend.TimeoutMinutes,
			Message: "must be non-negative",
		})
	}
	if c.Backend.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.max_retries",
			Value:   c.Backend.MaxRetries,
			Message: "must be non-negative",
		})
	}
	if c.Backend.RetryBackoffMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.retry_backoff_ms",
			Value:   c.Backend.RetryBackoffMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateAnalysis() []ValidationError {
	var errors []ValidationError

	if c.Analysis.AmbiguityCeiling < 0 || c.Analysis.AmbiguityCeiling > 1 {
		errors = append(errors, ValidationError{
			Field:   "analysis.ambiguity_ceiling",
			Value:   c.Analysis.AmbiguityCeiling,
			Message: "must be between 0.0 and 1.0",
		})
	}

	return errors
}

func (c *Config) validateExecution() []ValidationError {
	var errors []ValidationError

	if c.Execution.MaxParallel < 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.max_parallel",
			Value:   c.Execution.MaxParallel,
			Message: "must be non-negative (0 = unbounded)",
		})
	}
	if c.Execution.MinSubItems < 2 {
		errors = append(errors, ValidationError{
			Field:   "execution.min_sub_items",
			Value:   c.Execution.MinSubItems,
			Message: "must be at least 2",
		})
	}
	if c.Execution.MaxSubItems < c.Execution.MinSubItems {
		errors = append(errors, ValidationError{
			Field:   "execution.max_sub_items",
			Value:   c.Execution.MaxSubItems,
			Message: fmt.Sprintf("must be at least min_sub_items (%d)", c.Execution.MinSubItems),
		})
	}

	return errors
}

func (c *Config) validateEvaluation() []ValidationError {
	var errors []ValidationError

	unit := []struct {
		field string
		value float64
	}{
		{"evaluation.satisfaction_threshold", c.Evaluation.SatisfactionThreshold},
		{"evaluation.drift_threshold", c.Evaluation.DriftThreshold},
		{"evaluation.uncertainty_threshold", c.Evaluation.UncertaintyThreshold},
	}
	for _, u := range unit {
		if u.value < 0 || u.value > 1 {
			errors = append(errors, ValidationError{
				Field:   u.field,
				Value:   u.value,
				Message: "must be between 0.0 and 1.0",
			})
		}
	}

	if c.Evaluation.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "evaluation.max_retries",
			Value:   c.Evaluation.MaxRetries,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateConsensus() []ValidationError {
	var errors []ValidationError

	if c.Consensus.ReducedConfidencePenalty < 0 || c.Consensus.ReducedConfidencePenalty > 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.reduced_confidence_penalty",
			Value:   c.Consensus.ReducedConfidencePenalty,
			Message: "must be between 0.0 and 1.0",
		})
	}

	return errors
}

func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	if c.Orchestrator.MaxItemAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_item_attempts",
			Value:   c.Orchestrator.MaxItemAttempts,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateChecks() []ValidationError {
	var errors []ValidationError

	if c.Checks.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "checks.timeout_seconds",
			Value:   c.Checks.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}
	for i, cmd := range c.Checks.Commands {
		if cmd.Name == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("checks.commands[%d].name", i),
				Value:   cmd.Name,
				Message: "must not be empty",
			})
		}
		if cmd.Command == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("checks.commands[%d].command", i),
				Value:   cmd.Command,
				Message: "must not be empty",
			})
		}
	}

	return errors
}

func (c *Config) validateEvents() []ValidationError {
	var errors []ValidationError

	if !IsValidEventStore(c.Events.Store) {
		errors = append(errors, ValidationError{
			Field:   "events.store",
			Value:   c.Events.Store,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidEventStores(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
