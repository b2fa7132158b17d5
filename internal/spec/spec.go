// Package spec defines the immutable specification document that drives a
// steward run: the goal, constraints, ordered work items, output schema,
// evaluation weights, and exit conditions. Specifications are produced
// upstream; this package only loads and validates them, never mutates them.
package spec

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/steward-dev/steward/internal/errors"
)

// TaskKind classifies a work item so the executor can select the matching
// capability set and prompt template. The set of kinds is closed.
type TaskKind string

const (
	// TaskCode is implementation work that edits the target tree.
	TaskCode TaskKind = "code"
	// TaskResearch is read-only investigation producing findings.
	TaskResearch TaskKind = "research"
	// TaskAnalysis is read-only reasoning over existing material.
	TaskAnalysis TaskKind = "analysis"
)

// ValidTaskKinds returns the closed set of task kinds.
func ValidTaskKinds() []TaskKind {
	return []TaskKind{TaskCode, TaskResearch, TaskAnalysis}
}

// IsValid reports whether the kind is a member of the closed set.
func (k TaskKind) IsValid() bool {
	switch k {
	case TaskCode, TaskResearch, TaskAnalysis:
		return true
	}
	return false
}

// WorkItem is one discrete unit of the specification to be executed by the
// external agent. In the document a work item may be either a bare string or
// a mapping carrying execution hints.
type WorkItem struct {
	// Text is the natural-language description of the work.
	Text string `yaml:"text"`
	// Kind selects the capability set and prompt template. Defaults to code.
	Kind TaskKind `yaml:"kind"`
	// Final marks the item as a final or irreversible deliverable, which
	// always escalates its evaluation to consensus review.
	Final bool `yaml:"final"`
	// OntologyAffecting marks the item as one whose output may reshape the
	// specification's schema or vocabulary, which always escalates to
	// consensus review.
	OntologyAffecting bool `yaml:"ontology_affecting"`
}

// UnmarshalYAML accepts both the shorthand string form and the full mapping
// form for a work item.
func (w *WorkItem) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		w.Text = value.Value
		w.Kind = TaskCode
		return nil
	}

	type plain WorkItem
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*w = WorkItem(p)
	if w.Kind == "" {
		w.Kind = TaskCode
	}
	return nil
}

// SchemaField is one named field of the specification's output schema.
type SchemaField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Principle is a weighted evaluation principle used during semantic review.
type Principle struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
}

// ExitCondition names a condition under which the run should stop.
type ExitCondition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Criteria    string `yaml:"criteria"`
}

// Metadata carries document-level annotations produced upstream.
type Metadata struct {
	// AmbiguityScore is the upstream interviewer's estimate of how
	// underspecified the document is, in [0,1]. Specifications above the
	// configured ceiling are not eligible for execution.
	AmbiguityScore float64 `yaml:"ambiguity_score"`

	// scoreSet records that ambiguity_score was present in the document.
	// An absent score must not read as an explicit 0.0.
	scoreSet bool
}

// UnmarshalYAML decodes the metadata block through a nullable score so
// Validate can tell a missing ambiguity_score apart from zero.
func (m *Metadata) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		AmbiguityScore *float64 `yaml:"ambiguity_score"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.AmbiguityScore != nil {
		m.AmbiguityScore = *raw.AmbiguityScore
		m.scoreSet = true
	}
	return nil
}

// Specification is the immutable goal contract for one run.
type Specification struct {
	Goal                 string          `yaml:"goal"`
	Constraints          []string        `yaml:"constraints"`
	WorkItems            []WorkItem      `yaml:"work_items"`
	OutputSchema         []SchemaField   `yaml:"output_schema"`
	EvaluationPrinciples []Principle     `yaml:"evaluation_principles"`
	ExitConditions       []ExitCondition `yaml:"exit_conditions"`
	Metadata             Metadata        `yaml:"metadata"`
}

// Load reads and validates a specification document from path.
func Load(path string) (*Specification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read specification: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a specification document.
func Parse(data []byte) (*Specification, error) {
	var s Specification
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse specification: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the required fields of the document. Ambiguity eligibility
// is checked separately against the configured ceiling.
func (s *Specification) Validate() error {
	if strings.TrimSpace(s.Goal) == "" {
		return fmt.Errorf("%w: goal", errors.ErrSpecMissingField)
	}
	if len(s.WorkItems) == 0 {
		return errors.ErrSpecNoItems
	}
	for i, item := range s.WorkItems {
		if strings.TrimSpace(item.Text) == "" {
			return fmt.Errorf("%w: work_items[%d].text", errors.ErrSpecMissingField, i)
		}
		if !item.Kind.IsValid() {
			return fmt.Errorf("%w: work_items[%d].kind %q", errors.ErrInvalidInput, i, item.Kind)
		}
	}
	if len(s.OutputSchema) == 0 {
		return fmt.Errorf("%w: output_schema", errors.ErrSpecMissingField)
	}
	for i, f := range s.OutputSchema {
		if f.Name == "" || f.Type == "" {
			return fmt.Errorf("%w: output_schema[%d]", errors.ErrSpecMissingField, i)
		}
	}
	if !s.Metadata.scoreSet {
		return fmt.Errorf("%w: metadata.ambiguity_score", errors.ErrSpecMissingField)
	}
	if s.Metadata.AmbiguityScore < 0 || s.Metadata.AmbiguityScore > 1 {
		return fmt.Errorf("%w: metadata.ambiguity_score must be in [0,1]", errors.ErrInvalidInput)
	}
	return nil
}

// CheckAmbiguity reports whether the specification is eligible for execution
// under the given ambiguity ceiling.
func (s *Specification) CheckAmbiguity(ceiling float64) error {
	if s.Metadata.AmbiguityScore > ceiling {
		return fmt.Errorf("%w: score %.2f exceeds ceiling %.2f",
			errors.ErrSpecAmbiguous, s.Metadata.AmbiguityScore, ceiling)
	}
	return nil
}

// ItemTexts returns the ordered work-item texts.
func (s *Specification) ItemTexts() []string {
	texts := make([]string, len(s.WorkItems))
	for i, item := range s.WorkItems {
		texts[i] = item.Text
	}
	return texts
}

// RenderConstraints returns the constraint list as a bulleted block for
// prompt construction, or an empty string when there are none.
func (s *Specification) RenderConstraints() string {
	if len(s.Constraints) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range s.Constraints {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderSchema returns the output schema as a name/type listing for prompt
// construction.
func (s *Specification) RenderSchema() string {
	var sb strings.Builder
	for _, f := range s.OutputSchema {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Name, f.Type)
	}
	return sb.String()
}

// RenderPrinciples returns the weighted evaluation principles as a bulleted
// block, or an empty string when there are none.
func (s *Specification) RenderPrinciples() string {
	if len(s.EvaluationPrinciples) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range s.EvaluationPrinciples {
		fmt.Fprintf(&sb, "- %s (weight %.2f): %s\n", p.Name, p.Weight, p.Description)
	}
	return sb.String()
}

// RenderExitConditions returns the exit conditions as a bulleted block, or
// an empty string when there are none.
func (s *Specification) RenderExitConditions() string {
	if len(s.ExitConditions) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range s.ExitConditions {
		fmt.Fprintf(&sb, "- %s: %s", c.Name, c.Description)
		if c.Criteria != "" {
			fmt.Fprintf(&sb, " (criteria: %s)", c.Criteria)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
