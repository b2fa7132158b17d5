package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/event"
)

var eventsCmd = &cobra.Command{
	Use:   "events [run-id]",
	Short: "Inspect the event log of past runs",
	Long: `Events queries the persistent event store. With no argument it lists
known run IDs, most recent first; with a run ID it replays that run's
full event stream in order.

Requires events.store set to "sqlite". Runs recorded with the jsonl
store can be read directly from events.jsonl in the run directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.Events.Store != "sqlite" {
		return fmt.Errorf("events requires the sqlite store (events.store is %q)", cfg.Events.Store)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	store, err := event.NewSQLiteStore(cfg.Paths.ResolveRunDir(cwd))
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		runs, err := store.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No recorded runs")
			return nil
		}
		for _, runID := range runs {
			fmt.Println(runID)
		}
		return nil
	}

	events, err := store.Events(args[0])
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events recorded for run %q", args[0])
	}
	for _, e := range events {
		fmt.Printf("%4d %s %-22s %s\n", e.Seq, e.Time, e.Type, e.Payload)
	}
	return nil
}
