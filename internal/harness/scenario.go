package harness

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a schema conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema directory. Relative paths are resolved
	// against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Fixtures are inserted through the session before the first step.
	Fixtures []Fixture `yaml:"fixtures,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the step results and the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Fixture holds plain records of one entity type.
type Fixture struct {
	Type    string           `yaml:"type"`
	Records []map[string]any `yaml:"records"`
}

// Step is one action of a scenario. Exactly one of Query, Update and
// Remove is set.
type Step struct {
	Name   string    `yaml:"name"`
	Query  *QuerySpec `yaml:"query,omitempty"`
	Update *Mutation  `yaml:"update,omitempty"`
	Remove *Mutation  `yaml:"remove,omitempty"`
	Expect *Expect    `yaml:"expect,omitempty"`
}

// Action returns the name of the step's action.
func (s Step) Action() string {
	switch {
	case s.Query != nil:
		return ActionQuery
	case s.Update != nil:
		return ActionUpdate
	case s.Remove != nil:
		return ActionRemove
	}
	return ""
}

// Step actions.
const (
	ActionQuery  = "query"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// QuerySpec describes a query in plain terms. Join paths are dotted and
// sort fields take a - prefix for descending order.
type QuerySpec struct {
	Type      string         `yaml:"type"`
	Filter    map[string]any `yaml:"filter,omitempty"`
	Join      []string       `yaml:"join,omitempty"`
	InnerJoin []string       `yaml:"inner_join,omitempty"`
	Sort      []string       `yaml:"sort,omitempty"`
	Select    []string       `yaml:"select,omitempty"`
	Skip      int            `yaml:"skip,omitempty"`
	Limit     int            `yaml:"limit,omitempty"`
	Count     bool           `yaml:"count,omitempty"`
}

// Mutation selects exactly one stored record by Where. Set holds plain
// values applied by an update.
type Mutation struct {
	Type  string         `yaml:"type"`
	Where map[string]any `yaml:"where"`
	Set   map[string]any `yaml:"set,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Count is the expected number of results.
	Count *int `yaml:"count,omitempty"`

	// Error is a substring of the expected error message.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates step results or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Step names the step whose results are checked.
	Step string `yaml:"step,omitempty"`

	// Count is the expected result count (result_count).
	Count int `yaml:"count,omitempty"`

	// Where is a subset of the fields of a result (result_contains) or the
	// filter selecting stored records (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Field and Values give the expected order (result_order).
	Field  string `yaml:"field,omitempty"`
	Values []any  `yaml:"values,omitempty"`

	// Entity is the type queried by final_state.
	Entity string `yaml:"entity,omitempty"`

	// Expect contains expected field values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent expects no stored record to match (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertResultCount    = "result_count"
	AssertResultContains = "result_contains"
	AssertResultOrder    = "result_order"
	AssertFinalState     = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and a relative schema path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, f := range s.Fixtures {
		if f.Type == "" {
			return fmt.Errorf("fixtures[%d]: type is required", i)
		}
	}

	seen := make(map[string]bool, len(s.Steps))
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if seen[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		seen[step.Name] = true

		actions := 0
		for _, set := range []bool{step.Query != nil, step.Update != nil, step.Remove != nil} {
			if set {
				actions++
			}
		}
		if actions != 1 {
			return fmt.Errorf("step %q: exactly one of query, update or remove is required", step.Name)
		}

		switch {
		case step.Query != nil && step.Query.Type == "":
			return fmt.Errorf("step %q: query type is required", step.Name)
		case step.Update != nil && step.Update.Type == "":
			return fmt.Errorf("step %q: update type is required", step.Name)
		case step.Update != nil && len(step.Update.Set) == 0:
			return fmt.Errorf("step %q: update set is required", step.Name)
		case step.Remove != nil && step.Remove.Type == "":
			return fmt.Errorf("step %q: remove type is required", step.Name)
		}
	}

	for i, a := range s.Assertions {
		if a.Type != AssertFinalState && !seen[a.Step] {
			return fmt.Errorf("assertions[%d]: unknown step %q", i, a.Step)
		}
		if a.Type == AssertFinalState && a.Entity == "" {
			return fmt.Errorf("assertions[%d]: final_state requires entity", i)
		}
	}

	return nil
}

// FindScenarios returns the YAML files under dir in lexical order. A
// non-empty filter is a glob matched against the file name without its
// extension. Golden directories are skipped.
func FindScenarios(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(d.Name(), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// GoldenPath returns the golden file of a scenario file: golden/<name>.golden
// next to it.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}
