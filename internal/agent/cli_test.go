package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/logging"
)

// fakeBackend writes a shell script that plays the part of the agent CLI.
func fakeBackend(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backend.sh")
	content := "#!/bin/sh\ncat > /dev/null\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("write fake backend: %v", err)
	}
	return path
}

func TestCLIInvokerParsesTrace(t *testing.T) {
	script := `cat <<'EOF'
I inspected the files and made the change.
<trace>
{
  "invocations": [
    {"tool": "Read", "path": "main.go", "success": true},
    {"tool": "Write", "path": "handler.go", "success": true}
  ],
  "output": "Added the handler."
}
</trace>
EOF`

	inv := NewCLIInvoker(config.BackendConfig{
		Command:    fakeBackend(t, script),
		MaxRetries: 0,
	}, logging.NopLogger())

	tr, err := inv.Invoke(context.Background(), Request{
		Prompt:       "add a handler",
		Capabilities: FullSet,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if len(tr.Invocations) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(tr.Invocations))
	}
	// Tool names are normalized to lowercase.
	if tr.Invocations[1].Tool != "write" {
		t.Errorf("tool = %q, want write", tr.Invocations[1].Tool)
	}
	if tr.Output != "Added the handler." {
		t.Errorf("output = %q", tr.Output)
	}

	paths := tr.WrittenPaths()
	if len(paths) != 1 || paths[0] != "handler.go" {
		t.Errorf("written paths = %v", paths)
	}
}

func TestCLIInvokerRetriesParseFailure(t *testing.T) {
	// The script fails to produce a trace on the first call, then succeeds.
	dir := t.TempDir()
	marker := filepath.Join(dir, "called")
	script := fmt.Sprintf(`if [ -f %q ]; then
cat <<'EOF'
<trace>{"invocations": [], "output": "second try"}</trace>
EOF
else
touch %q
echo "no tags here"
fi`, marker, marker)

	inv := NewCLIInvoker(config.BackendConfig{
		Command:        fakeBackend(t, script),
		MaxRetries:     2,
		RetryBackoffMs: 1,
	}, logging.NopLogger())

	tr, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Invoke should succeed on retry: %v", err)
	}
	if tr.Output != "second try" {
		t.Errorf("output = %q", tr.Output)
	}
}

func TestCLIInvokerBudgetExhaustion(t *testing.T) {
	inv := NewCLIInvoker(config.BackendConfig{
		Command:        fakeBackend(t, `echo "never a trace"`),
		MaxRetries:     1,
		RetryBackoffMs: 1,
	}, logging.NopLogger())

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.ErrRetryBudgetExhausted) {
		t.Errorf("expected budget exhaustion, got %v", err)
	}
}

func TestCLIInvokerCommandFailure(t *testing.T) {
	inv := NewCLIInvoker(config.BackendConfig{
		Command:        filepath.Join(t.TempDir(), "does-not-exist"),
		MaxRetries:     0,
		RetryBackoffMs: 1,
	}, logging.NopLogger())

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, errors.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestRenderPrompt(t *testing.T) {
	plain := renderPrompt(Request{Prompt: "do the thing"})
	if plain != "do the thing" {
		t.Errorf("plain prompt = %q", plain)
	}

	withCtx := renderPrompt(Request{Prompt: "do the thing", Context: "level 0 built the base"})
	if withCtx == plain {
		t.Error("context should change the rendered prompt")
	}
}
