package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/checks"
	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/consensus"
	"github.com/steward-dev/steward/internal/console"
	"github.com/steward-dev/steward/internal/coordinator"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/executor"
	"github.com/steward-dev/steward/internal/graph"
	"github.com/steward-dev/steward/internal/logging"
	"github.com/steward-dev/steward/internal/orchestrator"
	"github.com/steward-dev/steward/internal/pipeline"
	"github.com/steward-dev/steward/internal/spec"
)

var runCmd = &cobra.Command{
	Use:   "run <spec-file>",
	Short: "Execute every work item of a specification",
	Long: `Run loads the specification, infers work-item dependencies, and
executes the items level by level: independent items run in parallel,
each level is coordinated before the next one starts, and every
artifact passes mechanical and semantic verification.

Examples:
  # Run a specification
  steward run feature.yaml

  # Limit concurrent agent sessions
  steward run --max-parallel 2 feature.yaml

  # Skip the consensus stage entirely
  steward run --no-consensus feature.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runMaxParallel int
	runMaxAttempts int
	runNoConsensus bool
	runQuiet       bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Maximum concurrent items per level (0 = config default)")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Attempts per item before it is marked failed (0 = config default)")
	runCmd.Flags().BoolVar(&runNoConsensus, "no-consensus", false, "Disable the consensus review stage")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress per-event console output")
}

func runRun(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg := config.Get()
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %s\n", e.Error())
		}
		return fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	if runMaxParallel > 0 {
		cfg.Execution.MaxParallel = runMaxParallel
	}
	if runMaxAttempts > 0 {
		cfg.Orchestrator.MaxItemAttempts = runMaxAttempts
	}
	if runNoConsensus {
		cfg.Consensus.Enabled = false
	}

	s, err := spec.Load(args[0])
	if err != nil {
		return err
	}
	if err := s.CheckAmbiguity(cfg.Analysis.AmbiguityCeiling); err != nil {
		return err
	}

	runID := "run-" + uuid.NewString()[:8]
	runRoot := cfg.Paths.ResolveRunDir(cwd)
	runDir := filepath.Join(runRoot, runID)

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(runDir, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Close()
	}
	logger = logger.WithRun(runID)

	bus := event.NewBus()
	emitter := event.NewEmitter(bus, runID)

	if !runQuiet {
		console.New(os.Stdout).Attach(bus)
	}

	switch cfg.Events.Store {
	case "jsonl":
		store, err := event.NewJSONLStore(runDir)
		if err != nil {
			return err
		}
		defer store.Close()
		event.Attach(bus, store, func(err error) {
			logger.Warn("event store append failed", "error", err)
		})
	case "sqlite":
		store, err := event.NewSQLiteStore(runRoot)
		if err != nil {
			return err
		}
		defer store.Close()
		event.Attach(bus, store, func(err error) {
			logger.Warn("event store append failed", "error", err)
		})
	}

	invoker := agent.NewCLIInvoker(cfg.Backend, logger)
	analyzer := graph.NewAnalyzer(invoker, emitter, logger, cfg.Analysis.AllowDegraded)
	exec := executor.New(invoker, emitter, logger, cfg.Execution, s)
	coord := coordinator.New(invoker, emitter, logger)
	runner := checks.NewShellRunner(cfg.Checks, cwd, logger)
	engine := consensus.NewEngine(invoker, emitter, logger, cfg.Consensus.ReducedConfidencePenalty)
	pipe := pipeline.New(runner, invoker, engine, emitter, logger, cfg.Evaluation, cfg.Consensus.Enabled, s)

	orch := orchestrator.New(analyzer, exec, coord, pipe, emitter, logger,
		cfg.Orchestrator, cfg.Execution.MaxParallel, s)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(report.Render())
	fmt.Printf("\nRun ID: %s\n", runID)

	if !report.Success {
		return fmt.Errorf("%d of %d items did not complete",
			report.Failed+report.Skipped, len(report.Items))
	}
	return nil
}
