package executor

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/spec"
	"github.com/steward-dev/steward/internal/trace"
)

// scriptedInvoker answers each call by matching the prompt against a keyword.
type scriptedInvoker struct {
	mu      sync.Mutex
	answers map[string]string // prompt substring -> output
	err     error
	prompts []string
}

func (s *scriptedInvoker) Invoke(_ context.Context, req agent.Request) (*trace.ExecutionTrace, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	for key, output := range s.answers {
		if strings.Contains(req.Prompt, key) {
			tr := trace.New(-1)
			tr.Output = output
			return tr, nil
		}
	}
	tr := trace.New(-1)
	tr.Output = `<trace>{"invocations": [], "output": "done"}</trace>`
	return tr, nil
}

func testSpec() *spec.Specification {
	return &spec.Specification{
		Goal:        "build the service",
		Constraints: []string{"no breaking changes"},
		WorkItems: []spec.WorkItem{
			{Text: "implement the handler", Kind: spec.TaskCode},
		},
		OutputSchema: []spec.SchemaField{{Name: "out", Type: "module"}},
	}
}

func execConfig(decompose bool) config.ExecutionConfig {
	return config.ExecutionConfig{
		MaxParallel: 4,
		Decompose:   decompose,
		MinSubItems: 2,
		MaxSubItems: 5,
	}
}

func TestExecuteAtomic(t *testing.T) {
	e := New(&atomicInvoker{}, nil, nil, execConfig(true), testSpec())
	tr, err := e.Execute(context.Background(), 0, testSpec().WorkItems[0], "", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if tr.ItemIndex != 0 {
		t.Errorf("item index = %d, want 0", tr.ItemIndex)
	}
	if tr.Decomposed() {
		t.Error("atomic item should not be decomposed")
	}
}

// atomicInvoker answers the probe with atomic and executions with a trace.
type atomicInvoker struct{}

func (atomicInvoker) Invoke(_ context.Context, req agent.Request) (*trace.ExecutionTrace, error) {
	tr := trace.New(-1)
	if strings.Contains(req.Prompt, "<decomposition>") {
		tr.Output = `<decomposition>{"atomic": true}</decomposition>`
		return tr, nil
	}
	tr.Output = "wrote handler"
	tr.Invocations = []trace.ToolInvocation{{Tool: "write", Path: "h.go", Success: true}}
	return tr, nil
}

// splittingInvoker decomposes into two sub-items, each writing its own file.
type splittingInvoker struct {
	mu       sync.Mutex
	sessions int
}

func (s *splittingInvoker) Invoke(_ context.Context, req agent.Request) (*trace.ExecutionTrace, error) {
	tr := trace.New(-1)
	if strings.Contains(req.Prompt, "<decomposition>") {
		tr.Output = `<decomposition>{"atomic": false, "sub_items": ["part one", "part two"]}</decomposition>`
		return tr, nil
	}

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	path := "one.go"
	if strings.Contains(req.Prompt, "part two") {
		path = "two.go"
	}
	tr.Invocations = []trace.ToolInvocation{{Tool: "write", Path: path, Success: true}}
	tr.Output = "did " + path
	return tr, nil
}

func TestExecuteDecomposed(t *testing.T) {
	bus := event.NewBus()
	var decomposed []event.Envelope
	bus.Subscribe("item.decomposed", func(env event.Envelope) {
		decomposed = append(decomposed, env)
	})

	inv := &splittingInvoker{}
	e := New(inv, event.NewEmitter(bus, "r1"), nil, execConfig(true), testSpec())

	tr, err := e.Execute(context.Background(), 3, testSpec().WorkItems[0], "", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if inv.sessions != 2 {
		t.Errorf("expected 2 sub-item sessions, got %d", inv.sessions)
	}
	if !tr.Decomposed() || len(tr.SubTraces) != 2 {
		t.Fatalf("expected 2 sub-traces, got %+v", tr)
	}
	for i, sub := range tr.SubTraces {
		if sub.ItemIndex != 3 {
			t.Errorf("sub-trace %d attributed to item %d, want 3", i, sub.ItemIndex)
		}
	}
	paths := tr.WrittenPaths()
	if len(paths) != 2 {
		t.Errorf("expected writes from both sub-items, got %v", paths)
	}
	if len(decomposed) != 1 {
		t.Errorf("expected 1 decomposed event, got %d", len(decomposed))
	}
}

func TestDecompositionDisabledSkipsProbe(t *testing.T) {
	inv := &scriptedInvoker{}
	e := New(inv, nil, nil, execConfig(false), testSpec())

	if _, err := e.Execute(context.Background(), 0, testSpec().WorkItems[0], "", ""); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	for _, p := range inv.prompts {
		if strings.Contains(p, "<decomposition>") {
			t.Error("probe should not run when decomposition is disabled")
		}
	}
	if len(inv.prompts) != 1 {
		t.Errorf("expected exactly 1 session, got %d", len(inv.prompts))
	}
}

// boundsInvoker answers the probe with too many sub-items.
type boundsInvoker struct {
	executions int
}

func (b *boundsInvoker) Invoke(_ context.Context, req agent.Request) (*trace.ExecutionTrace, error) {
	tr := trace.New(-1)
	if strings.Contains(req.Prompt, "<decomposition>") {
		tr.Output = `<decomposition>{"atomic": false, "sub_items": ["a","b","c","d","e","f"]}</decomposition>`
		return tr, nil
	}
	b.executions++
	tr.Output = "done"
	return tr, nil
}

func TestDecompositionOutOfBoundsFallsBackToAtomic(t *testing.T) {
	inv := &boundsInvoker{}
	e := New(inv, nil, nil, execConfig(true), testSpec())

	tr, err := e.Execute(context.Background(), 0, testSpec().WorkItems[0], "", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if tr.Decomposed() {
		t.Error("out-of-bounds decomposition should fall back to atomic")
	}
	if inv.executions != 1 {
		t.Errorf("expected 1 atomic execution, got %d", inv.executions)
	}
}

func TestExecuteBackendFailureCarriesItem(t *testing.T) {
	inv := &scriptedInvoker{err: errors.NewBackendError("down", errors.ErrBackendUnavailable)}
	e := New(inv, nil, nil, execConfig(false), testSpec())

	_, err := e.Execute(context.Background(), 5, testSpec().WorkItems[0], "", "")
	if err == nil {
		t.Fatal("expected error")
	}

	var backendErr *errors.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.ItemIndex != 5 {
		t.Errorf("item index = %d, want 5", backendErr.ItemIndex)
	}
}

func TestPromptCarriesFeedbackAndConstraints(t *testing.T) {
	inv := &scriptedInvoker{}
	e := New(inv, nil, nil, execConfig(false), testSpec())

	_, err := e.Execute(context.Background(), 0, testSpec().WorkItems[0], "", "lint failed: unused import")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	prompt := inv.prompts[0]
	if !strings.Contains(prompt, "lint failed: unused import") {
		t.Error("prompt should carry attempt feedback")
	}
	if !strings.Contains(prompt, "no breaking changes") {
		t.Error("prompt should carry constraints")
	}
	if !strings.Contains(prompt, "build the service") {
		t.Error("prompt should carry the goal")
	}
}
