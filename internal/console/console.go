// Package console renders the run event stream for a terminal. It is a pure
// consumer: it subscribes to the bus and formats each event as it arrives,
// holding no run state of its own.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/steward-dev/steward/internal/event"
)

// Renderer writes one line per event to out.
type Renderer struct {
	out io.Writer
}

// New creates a renderer writing to out.
func New(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Attach subscribes the renderer to every event on the bus and returns the
// subscription id.
func (r *Renderer) Attach(bus *event.Bus) uint64 {
	return bus.SubscribeAll(r.render)
}

func (r *Renderer) render(env event.Envelope) {
	switch p := env.Payload.(type) {
	case event.RunStarted:
		fmt.Fprintf(r.out, "%s %s (%d items)\n",
			color.New(color.FgHiCyan).Sprint("run"), p.Goal, p.ItemCount)
	case event.RunCompleted:
		fmt.Fprintf(r.out, "%s %d completed, %d failed\n", runBadge(p.Success), p.Completed, p.Failed)
	case event.AnalysisDegraded:
		fmt.Fprintf(r.out, "%s dependency analysis failed, running all items in one level: %s\n",
			color.New(color.FgYellow).Sprint("degraded"), p.Reason)

	case event.LevelStarted:
		fmt.Fprintf(r.out, "%s level %d: items %s\n",
			color.New(color.FgHiBlue).Sprint("level"), p.Level, joinInts(p.Items))
	case event.LevelCompleted:
		line := fmt.Sprintf("level %d done", p.Level)
		if p.Conflicts > 0 {
			line += fmt.Sprintf(" (%d conflicts)", p.Conflicts)
		}
		fmt.Fprintf(r.out, "%s %s\n", color.New(color.FgHiBlue).Sprint("level"), line)

	case event.ItemStarted:
		attempt := ""
		if p.Attempt > 1 {
			attempt = color.New(color.FgYellow).Sprintf(" (attempt %d)", p.Attempt)
		}
		fmt.Fprintf(r.out, "  item %d started%s\n", p.Item, attempt)
	case event.ItemDecomposed:
		fmt.Fprintf(r.out, "  item %d split into %d sub-items\n", p.Item, p.SubItems)
	case event.ItemCompleted:
		fmt.Fprintf(r.out, "  item %d %s\n", p.Item, color.New(color.FgHiGreen).Sprint("completed"))
	case event.ItemFailed:
		fmt.Fprintf(r.out, "  item %d %s\n", p.Item, color.New(color.FgRed).Sprint("failed"))
		for _, reason := range p.Reasons {
			fmt.Fprintf(r.out, "    %s\n", color.New(color.FgHiBlack).Sprint(reason))
		}

	case event.ConflictDetected:
		fmt.Fprintf(r.out, "  %s %s written by items %s\n",
			color.New(color.FgYellow).Sprint("conflict"), p.Path, joinInts(p.Items))
	case event.ConflictResolved:
		fmt.Fprintf(r.out, "  %s %s: %s\n",
			color.New(color.FgHiGreen).Sprint("resolved"), p.Path, p.Description)
	case event.ConflictUnresolved:
		fmt.Fprintf(r.out, "  %s %s: %s\n",
			color.New(color.FgRed).Sprint("unresolved"), p.Path, p.Warning)

	case event.StageCompleted:
		fmt.Fprintf(r.out, "  item %d stage %d %s\n", p.Item, p.Stage, stageBadge(p.Passed))
	case event.VoteCast:
		fmt.Fprintf(r.out, "  item %d %s votes %s (%.2f)\n",
			p.Item, color.New(color.FgHiMagenta).Sprint(p.Role), p.Decision, p.Confidence)
	}
}

func runBadge(success bool) string {
	if success {
		return color.New(color.FgHiGreen).Sprint("run succeeded:")
	}
	return color.New(color.FgRed).Sprint("run failed:")
}

func stageBadge(passed bool) string {
	if passed {
		return color.New(color.FgHiGreen).Sprint("passed")
	}
	return color.New(color.FgRed).Sprint("failed")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
