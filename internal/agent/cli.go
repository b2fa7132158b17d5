package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/logging"
	"github.com/steward-dev/steward/internal/trace"
)

// traceTag wraps the structured session record in backend output.
const traceTag = "trace"

// cliTrace is the wire form of a session record as emitted by the backend.
type cliTrace struct {
	Invocations []struct {
		Tool    string          `json:"tool"`
		Input   json.RawMessage `json:"input,omitempty"`
		Path    string          `json:"path,omitempty"`
		Success bool            `json:"success"`
	} `json:"invocations"`
	Output string `json:"output"`
}

// CLIInvoker reaches the agent backend through a command-line executable.
// Each Invoke runs one process: the prompt goes to stdin, the structured
// trace comes back on stdout wrapped in a <trace> tag.
type CLIInvoker struct {
	cfg    config.BackendConfig
	logger *logging.Logger
}

// NewCLIInvoker creates a CLI-backed invoker.
func NewCLIInvoker(cfg config.BackendConfig, logger *logging.Logger) *CLIInvoker {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &CLIInvoker{cfg: cfg, logger: logger}
}

// Invoke runs one agent session, retrying transient and parse failures up to
// the configured budget with doubling backoff.
func (c *CLIInvoker) Invoke(ctx context.Context, req Request) (*trace.ExecutionTrace, error) {
	var lastErr error
	backoff := c.cfg.RetryBackoff()

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying backend call", "attempt", attempt, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return nil, errors.NewBackendError("canceled while waiting to retry", errors.ErrCanceled)
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		tr, err := c.invokeOnce(ctx, req)
		if err == nil {
			return tr, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, errors.NewBackendError("retry budget exhausted",
		errors.Join(errors.ErrRetryBudgetExhausted, lastErr)).
		WithAttempt(c.cfg.MaxRetries + 1)
}

func (c *CLIInvoker) invokeOnce(ctx context.Context, req Request) (*trace.ExecutionTrace, error) {
	if timeout := c.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := make([]string, 0, len(c.cfg.Args)+2)
	args = append(args, c.cfg.Args...)
	if len(req.Capabilities) > 0 {
		args = append(args, "--allowed-tools", strings.Join(req.Capabilities.Strings(), ","))
	}

	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	cmd.Stdin = strings.NewReader(renderPrompt(req))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	finished := time.Now()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.NewBackendError("backend call timed out", errors.ErrTimeout)
	}
	if ctx.Err() == context.Canceled {
		return nil, errors.NewBackendError("backend call canceled", errors.ErrCanceled).
			WithRetryable(false)
	}
	if err != nil {
		c.logger.Warn("backend command failed", "error", err.Error(), "stderr", stderr.String())
		return nil, errors.NewBackendError("backend command failed",
			errors.Join(errors.ErrBackendUnavailable, err))
	}

	raw := stdout.String()
	var wire cliTrace
	if err := DecodeTagged(raw, traceTag, &wire); err != nil {
		// Parse failures are retried like transient errors, but the raw
		// output is logged for diagnosis.
		c.logger.Warn("unparseable backend response", "error", err.Error())
		c.logger.Debug("raw backend output", "output", raw)
		return nil, errors.NewBackendError("unparseable backend response", err).
			WithRawOutput(raw)
	}

	tr := trace.New(-1)
	tr.Started = started
	tr.Finished = finished
	tr.Output = wire.Output
	for _, inv := range wire.Invocations {
		tr.Invocations = append(tr.Invocations, trace.ToolInvocation{
			Tool:    strings.ToLower(inv.Tool),
			Input:   inv.Input,
			Path:    inv.Path,
			Success: inv.Success,
		})
	}
	return tr, nil
}

// renderPrompt assembles the session input: contextual background first,
// then the instruction body.
func renderPrompt(req Request) string {
	if req.Context == "" {
		return req.Prompt
	}
	var sb strings.Builder
	sb.WriteString("## Background from earlier levels\n\n")
	sb.WriteString(req.Context)
	sb.WriteString("\n\n## Task\n\n")
	sb.WriteString(req.Prompt)
	return sb.String()
}
