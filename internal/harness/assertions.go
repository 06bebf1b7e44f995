package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docmap/internal/database"
	"github.com/roach88/docmap/internal/query"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Items    []map[string]any // Results the assertion looked at
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Items) > 0 {
		fmt.Fprintf(&buf, "\nResults:\n")
		for i, item := range e.Items {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatFields(item))
		}
	}

	return buf.String()
}

// assertResultCount checks the number of results of a step.
func assertResultCount(sr *StepResult, a Assertion) error {
	if sr.Count != a.Count {
		return &AssertionError{
			Type:     AssertResultCount,
			Expected: fmt.Sprintf("%d result(s) from step %s", a.Count, a.Step),
			Actual:   fmt.Sprintf("%d result(s)", sr.Count),
			Items:    sr.Items,
		}
	}
	return nil
}

// assertResultContains checks that some result of a step matches
// a.Where (subset match).
func assertResultContains(sr *StepResult, a Assertion) error {
	for _, item := range sr.Items {
		if matchFields(item, a.Where) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertResultContains,
		Expected: fmt.Sprintf("result of step %s with %s", a.Step, formatFields(a.Where)),
		Actual:   "not found in results",
		Items:    sr.Items,
	}
}

// assertResultOrder checks that the values of a.Field appear in the
// given order. Other results may appear in between.
func assertResultOrder(sr *StepResult, a Assertion) error {
	if a.Field == "" {
		return fmt.Errorf("result_order assertion requires field")
	}

	positions := make([]int, len(a.Values))
	for i, want := range a.Values {
		positions[i] = slices.IndexFunc(sr.Items, func(item map[string]any) bool {
			got, ok := item[a.Field]
			return ok && valuesEqual(got, want)
		})
		if positions[i] < 0 {
			return &AssertionError{
				Type:     AssertResultOrder,
				Expected: fmt.Sprintf("all values present: %v", a.Values),
				Actual:   fmt.Sprintf("missing %s=%v", a.Field, want),
				Items:    sr.Items,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertResultOrder,
				Expected: fmt.Sprintf("%s in order: %v", a.Field, a.Values),
				Actual: fmt.Sprintf("%v (pos %d) should be before %v (pos %d)",
					a.Values[i-1], positions[i-1]+1, a.Values[i], positions[i]+1),
				Items: sr.Items,
			}
		}
	}
	return nil
}

// assertFinalState queries the stored records of a.Entity matching a.Where
// and validates expected values using subset semantics.
func assertFinalState(ctx context.Context, session *database.Session, a Assertion) error {
	items, err := session.Query(a.Entity).Filter(query.Filter(a.Where)).AsJSON().Find(ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query %s", a.Entity),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	where := formatFields(a.Where)
	switch {
	case a.Absent && len(items) > 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("no %s where %s", a.Entity, where),
			Actual:   fmt.Sprintf("%d record(s) matched", len(items)),
			Items:    items,
		}
	case a.Absent:
		return nil
	case len(items) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s where %s", a.Entity, where),
			Actual:   "record not found",
		}
	case len(items) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one %s where %s", a.Entity, where),
			Actual:   "multiple records matched (assertion is ambiguous)",
			Items:    items,
		}
	}

	actual := items[0]
	for _, key := range sortedKeys(a.Expect) {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present", key),
				Items:    items,
			}
		}
		if !valuesEqual(got, a.Expect[key]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, a.Expect[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, got),
				Items:    items,
			}
		}
	}
	return nil
}

// matchFields checks if actual contains all expected fields (subset match).
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values by their JSON encoding, so YAML integers
// equal decoded numbers and nested maps compare by content.
func valuesEqual(actual, expected any) bool {
	a, err := json.Marshal(actual)
	if err != nil {
		return false
	}
	e, err := json.Marshal(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, e)
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(fields)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// AssertionContext provides database access for final_state assertions.
type AssertionContext struct {
	Session *database.Session
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		if a.Type == AssertFinalState {
			if actx == nil || actx.Session == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Session, a)
			}
		} else if sr, ok := result.Step(a.Step); !ok {
			err = fmt.Errorf("assertion[%d]: no result for step %q", i, a.Step)
		} else {
			switch a.Type {
			case AssertResultCount:
				err = assertResultCount(sr, a)
			case AssertResultContains:
				err = assertResultContains(sr, a)
			case AssertResultOrder:
				err = assertResultOrder(sr, a)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
