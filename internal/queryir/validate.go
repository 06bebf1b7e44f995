package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/docmap/internal/wire"
)

// ValidationResult lists the problems found in a Find.
type ValidationResult struct {
	// IsValid is true when Problems is empty.
	IsValid bool

	// Problems describes every rule the query violates.
	Problems []string
}

// Err returns the problems as one error, or nil.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks a Find before it reaches a backend.
//
// Rules:
//  1. Collection is required
//  2. Skip and Limit are non-negative
//  3. Field paths are non-empty, have no empty segments and no quotes
//  4. Literal values are wire scalars (Equals also accepts nil)
//  5. Compare uses a known operator
//  6. Not wraps a predicate
//
// Validate is a pure function with no side effects.
func Validate(f Find) ValidationResult {
	v := &validator{problems: []string{}}

	if f.Collection == "" {
		v.addProblem("collection is required")
	}
	if f.Skip < 0 {
		v.addProblem("negative skip %d", f.Skip)
	}
	if f.Limit < 0 {
		v.addProblem("negative limit %d", f.Limit)
	}
	for _, s := range f.Sort {
		v.validateField("sort", s.Field)
	}
	for _, field := range f.Projection {
		v.validateField("projection", field)
	}
	if f.Filter != nil {
		v.validatePredicate(f.Filter)
	}

	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateField(where, field string) {
	if field == "" {
		v.addProblem("%s: empty field path", where)
		return
	}
	if strings.Contains(field, `"`) {
		v.addProblem("%s: field %q contains a quote", where, field)
	}
	for _, seg := range strings.Split(field, ".") {
		if seg == "" {
			v.addProblem("%s: field %q has an empty segment", where, field)
			return
		}
	}
}

func (v *validator) validateValue(field string, value any) {
	if _, err := wire.CanonicalKey(value); err != nil {
		v.addProblem("field %q: %v", field, err)
	}
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case Equals:
		v.validateField("filter", pred.Field)
		if pred.Value != nil {
			v.validateValue(pred.Field, pred.Value)
		}
	case Compare:
		v.validateField("filter", pred.Field)
		switch pred.Op {
		case OpNe:
			if pred.Value != nil {
				v.validateValue(pred.Field, pred.Value)
			}
		case OpGt, OpGte, OpLt, OpLte:
			v.validateValue(pred.Field, pred.Value)
		default:
			v.addProblem("field %q: unknown operator %q", pred.Field, pred.Op)
		}
	case In:
		v.validateField("filter", pred.Field)
		for _, val := range pred.Values {
			v.validateValue(pred.Field, val)
		}
	case Exists:
		v.validateField("filter", pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Not:
		if pred.Predicate == nil {
			v.addProblem("not: missing predicate")
			return
		}
		v.validatePredicate(pred.Predicate)
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
