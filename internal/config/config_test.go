package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config should validate, got: %v", ValidationErrors(errs))
	}
}

func TestValidateBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend.Command = ""
	cfg.Backend.MaxRetries = -1

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), ValidationErrors(errs))
	}
}

func TestValidateThresholdRanges(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{
			name:   "satisfaction above one",
			modify: func(c *Config) { c.Evaluation.SatisfactionThreshold = 1.5 },
			field:  "evaluation.satisfaction_threshold",
		},
		{
			name:   "drift negative",
			modify: func(c *Config) { c.Evaluation.DriftThreshold = -0.1 },
			field:  "evaluation.drift_threshold",
		},
		{
			name:   "ambiguity above one",
			modify: func(c *Config) { c.Analysis.AmbiguityCeiling = 2.0 },
			field:  "analysis.ambiguity_ceiling",
		},
		{
			name:   "penalty above one",
			modify: func(c *Config) { c.Consensus.ReducedConfidencePenalty = 1.2 },
			field:  "consensus.reduced_confidence_penalty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), ValidationErrors(errs))
			}
			if errs[0].Field != tt.field {
				t.Errorf("expected error on %s, got %s", tt.field, errs[0].Field)
			}
		})
	}
}

func TestValidateDecompositionBounds(t *testing.T) {
	cfg := Default()
	cfg.Execution.MinSubItems = 1
	errs := cfg.Validate()
	if len(errs) != 1 || errs[0].Field != "execution.min_sub_items" {
		t.Errorf("expected min_sub_items error, got %v", ValidationErrors(errs))
	}

	cfg = Default()
	cfg.Execution.MaxSubItems = 1
	errs = cfg.Validate()
	if len(errs) != 1 || errs[0].Field != "execution.max_sub_items" {
		t.Errorf("expected max_sub_items error, got %v", ValidationErrors(errs))
	}
}

func TestValidateChecks(t *testing.T) {
	cfg := Default()
	cfg.Checks.Commands = []CheckCommand{
		{Name: "build", Command: "make"},
		{Name: "", Command: "make"},
		{Name: "lint", Command: ""},
	}

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), ValidationErrors(errs))
	}
}

func TestValidateEventStore(t *testing.T) {
	cfg := Default()
	cfg.Events.Store = "postgres"

	errs := cfg.Validate()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Message, "jsonl") {
		t.Errorf("expected valid options in message, got %q", errs[0].Message)
	}
}

func TestValidationErrorsFormatting(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "also bad"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("expected count header, got %q", msg)
	}
	if !strings.Contains(msg, "a: bad (got: 1)") {
		t.Errorf("expected first error, got %q", msg)
	}
}

func TestResolveRunDir(t *testing.T) {
	base := "/workspace"

	p := PathsConfig{RunDir: ""}
	if got := p.ResolveRunDir(base); got != filepath.Join(base, ".steward", "runs") {
		t.Errorf("default run dir = %q", got)
	}

	p = PathsConfig{RunDir: "state"}
	if got := p.ResolveRunDir(base); got != filepath.Join(base, "state") {
		t.Errorf("relative run dir = %q", got)
	}

	p = PathsConfig{RunDir: "/var/lib/steward"}
	if got := p.ResolveRunDir(base); got != "/var/lib/steward" {
		t.Errorf("absolute run dir = %q", got)
	}
}

func TestBackendDurations(t *testing.T) {
	b := BackendConfig{TimeoutMinutes: 2, RetryBackoffMs: 250}
	if b.Timeout().Minutes() != 2 {
		t.Errorf("Timeout = %v", b.Timeout())
	}
	if b.RetryBackoff().Milliseconds() != 250 {
		t.Errorf("RetryBackoff = %v", b.RetryBackoff())
	}
}
