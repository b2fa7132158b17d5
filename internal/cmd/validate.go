package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/spec"
)

var validateCmd = &cobra.Command{
	Use:   "validate <spec-file>",
	Short: "Check a specification without running it",
	Long: `Validate loads and checks a specification: required fields, known
task kinds, and the ambiguity score against the configured ceiling.
Nothing is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	s, err := spec.Load(args[0])
	if err != nil {
		return err
	}
	if err := s.CheckAmbiguity(cfg.Analysis.AmbiguityCeiling); err != nil {
		return err
	}

	fmt.Printf("%s: valid\n", args[0])
	fmt.Printf("  goal: %s\n", s.Goal)
	fmt.Printf("  items: %d\n", len(s.WorkItems))
	for i, item := range s.WorkItems {
		marker := ""
		if item.Final {
			marker = " [final]"
		}
		fmt.Printf("    %d. (%s) %s%s\n", i, item.Kind, item.Text, marker)
	}
	if len(s.Constraints) > 0 {
		fmt.Printf("  constraints: %d\n", len(s.Constraints))
	}
	if len(s.OutputSchema) > 0 {
		fmt.Printf("  output schema fields: %d\n", len(s.OutputSchema))
	}
	return nil
}
