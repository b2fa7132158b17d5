package trace

import (
	"testing"
	"time"
)

func TestIsWrite(t *testing.T) {
	tests := []struct {
		inv  ToolInvocation
		want bool
	}{
		{ToolInvocation{Tool: "write", Path: "a.go"}, true},
		{ToolInvocation{Tool: "edit", Path: "a.go"}, true},
		{ToolInvocation{Tool: "delete", Path: "a.go"}, true},
		{ToolInvocation{Tool: "read", Path: "a.go"}, false},
		{ToolInvocation{Tool: "bash"}, false},
		{ToolInvocation{Tool: "write", Path: ""}, false},
	}

	for _, tt := range tests {
		if got := tt.inv.IsWrite(); got != tt.want {
			t.Errorf("IsWrite(%s, %q) = %v, want %v", tt.inv.Tool, tt.inv.Path, got, tt.want)
		}
	}
}

func TestWrittenPaths(t *testing.T) {
	tr := New(0)
	tr.Invocations = []ToolInvocation{
		{Tool: "read", Path: "a.go", Success: true},
		{Tool: "write", Path: "b.go", Success: true},
		{Tool: "edit", Path: "b.go", Success: true},
		{Tool: "write", Path: "c.go", Success: true},
	}

	paths := tr.WrittenPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d: %v", len(paths), paths)
	}
	if paths[0] != "b.go" || paths[1] != "c.go" {
		t.Errorf("unexpected path order: %v", paths)
	}
}

func TestWrittenPathsIncludesSubTraces(t *testing.T) {
	tr := Merge(3, []ExecutionTrace{
		{Invocations: []ToolInvocation{{Tool: "write", Path: "x.go", Success: true}}},
		{Invocations: []ToolInvocation{{Tool: "write", Path: "y.go", Success: true}}},
	})

	paths := tr.WrittenPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %v", paths)
	}
}

func TestMergeAttribution(t *testing.T) {
	early := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)

	subs := []ExecutionTrace{
		{
			Invocations: []ToolInvocation{{Tool: "write", Path: "a.go", Success: true}},
			Output:      "did a",
			Started:     early,
			Finished:    early.Add(5 * time.Minute),
		},
		{
			Invocations: []ToolInvocation{{Tool: "write", Path: "b.go", Success: true}},
			Output:      "did b",
			Started:     early.Add(time.Minute),
			Finished:    late,
		},
	}

	merged := Merge(7, subs)

	if !merged.Decomposed() {
		t.Error("merged trace should report decomposed")
	}
	if len(merged.SubTraces) != 2 {
		t.Fatalf("expected 2 sub-traces, got %d", len(merged.SubTraces))
	}
	for i, sub := range merged.SubTraces {
		if sub.ItemIndex != 7 {
			t.Errorf("sub-trace %d item index = %d, want 7", i, sub.ItemIndex)
		}
		if sub.SubItem != i {
			t.Errorf("sub-trace %d sub-item = %d, want %d", i, sub.SubItem, i)
		}
	}
	if len(merged.Invocations) != 2 {
		t.Errorf("expected concatenated invocations, got %d", len(merged.Invocations))
	}
	if merged.Started != early {
		t.Errorf("merged start = %v, want %v", merged.Started, early)
	}
	if merged.Finished != late {
		t.Errorf("merged finish = %v, want %v", merged.Finished, late)
	}
	if merged.Output != "did a\n\ndid b" {
		t.Errorf("merged output = %q", merged.Output)
	}
}

func TestNewTraceDefaults(t *testing.T) {
	tr := New(2)
	if tr.SubItem != -1 {
		t.Errorf("top-level trace sub-item = %d, want -1", tr.SubItem)
	}
	if tr.Decomposed() {
		t.Error("fresh trace should not be decomposed")
	}
	if got := tr.WrittenPaths(); len(got) != 0 {
		t.Errorf("fresh trace wrote %v", got)
	}
}
