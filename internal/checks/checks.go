// Package checks runs the configured mechanical verification commands
// (build, lint, tests, static analysis) against the target workspace.
// Checks carry zero model cost; a failing check is a retry signal, not an
// error.
package checks

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/logging"
)

// Result is one mechanical check outcome.
type Result struct {
	// Name is the configured check name (e.g., "build", "lint").
	Name string `json:"name"`
	// Passed reports whether the command exited zero.
	Passed bool `json:"passed"`
	// Message carries the command output on failure, truncated.
	Message string `json:"message,omitempty"`
}

// AllPassed reports whether every result in the list passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failures returns the failing results.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RenderFailures formats failing checks as feedback for a retry prompt.
func RenderFailures(results []Result) string {
	var sb strings.Builder
	for _, r := range Failures(results) {
		fmt.Fprintf(&sb, "- check %q failed: %s\n", r.Name, r.Message)
	}
	return sb.String()
}

// Runner executes the configured check commands in order.
type Runner interface {
	Run(ctx context.Context) ([]Result, error)
}

// maxMessageLen bounds the output captured from a failing check.
const maxMessageLen = 4000

// ShellRunner runs checks as subprocesses in a working directory.
type ShellRunner struct {
	cfg    config.ChecksConfig
	dir    string
	logger *logging.Logger
}

// NewShellRunner creates a runner over the given workspace directory.
func NewShellRunner(cfg config.ChecksConfig, dir string, logger *logging.Logger) *ShellRunner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ShellRunner{cfg: cfg, dir: dir, logger: logger}
}

// Run executes every configured check, in order, even after failures: the
// full failure list is what feeds the retry prompt. The returned error is
// non-nil only when the context is done.
func (r *ShellRunner) Run(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(r.cfg.Commands))

	for _, check := range r.cfg.Commands {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, r.runOne(ctx, check))
	}

	return results, nil
}

func (r *ShellRunner) runOne(ctx context.Context, check config.CheckCommand) Result {
	if timeout := r.cfg.CheckTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, check.Command, check.Args...)
	cmd.Dir = r.dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		r.logger.Debug("check passed", "check", check.Name)
		return Result{Name: check.Name, Passed: true}
	}

	msg := strings.TrimSpace(output.String())
	if ctx.Err() == context.DeadlineExceeded {
		msg = "timed out"
	} else if msg == "" {
		msg = err.Error()
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + " [truncated]"
	}

	r.logger.Info("check failed", "check", check.Name, "message", msg)
	return Result{Name: check.Name, Passed: false, Message: msg}
}
