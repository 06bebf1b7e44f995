package query

import (
	"errors"
	"fmt"
)

// NotFoundError is returned by FindOne and FindOneField when no record
// matches.
type NotFoundError struct {
	// Type is the queried entity type.
	Type string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item not found (type=%s)", e.Type)
}

// IsNotFound reports whether err is a NotFoundError.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ParameterError is returned when a filter references a parameter that was
// never set.
type ParameterError struct {
	// Name is the missing parameter.
	Name string
}

// Error implements the error interface.
func (e *ParameterError) Error() string {
	return fmt.Sprintf("Parameter %s not defined", e.Name)
}

// IsParameterError reports whether err is a ParameterError.
func IsParameterError(err error) bool {
	var pe *ParameterError
	return errors.As(err, &pe)
}

// FilterError reports a filter document the planner cannot compile.
type FilterError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *FilterError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid filter: %s (field=%s)", e.Message, e.Field)
	}
	return "invalid filter: " + e.Message
}
