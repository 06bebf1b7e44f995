package schema

import (
	"errors"
	"fmt"
)

// SchemaError reports a schema or relation misconfiguration.
//
// Schema errors are detected when a schema is registered, when the registry
// is validated, or when a query is built. They are never retried.
type SchemaError struct {
	// Code identifies the error category.
	Code SchemaErrorCode

	// Type is the entity type the error was detected on.
	Type string

	// Property is the offending property, if any.
	Property string

	// Message is a human-readable description.
	Message string
}

// SchemaErrorCode categorizes schema errors.
type SchemaErrorCode string

const (
	// ErrCodeNotAReference indicates a join or resolve on a plain property.
	ErrCodeNotAReference SchemaErrorCode = "NOT_A_REFERENCE"

	// ErrCodeReferenceNotFound indicates no reverse property could be paired.
	ErrCodeReferenceNotFound SchemaErrorCode = "REFERENCE_NOT_FOUND"

	// ErrCodeAmbiguousReference indicates several reverse properties qualify.
	ErrCodeAmbiguousReference SchemaErrorCode = "AMBIGUOUS_REFERENCE"

	// ErrCodeUnknownProperty indicates a property name not declared on the type.
	ErrCodeUnknownProperty SchemaErrorCode = "UNKNOWN_PROPERTY"

	// ErrCodeUnknownType indicates a type name missing from the registry.
	ErrCodeUnknownType SchemaErrorCode = "UNKNOWN_TYPE"

	// ErrCodeInvalidSchema indicates a malformed schema declaration.
	ErrCodeInvalidSchema SchemaErrorCode = "INVALID_SCHEMA"
)

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: %s (type=%s, property=%s)", e.Code, e.Message, e.Type, e.Property)
	}
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsSchemaError reports whether err is a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// HasCode reports whether err or any error it wraps is a SchemaError with
// the given code. Joined errors are searched in full.
func HasCode(err error, code SchemaErrorCode) bool {
	if se, ok := err.(*SchemaError); ok && se.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return HasCode(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
	}
	return false
}

// NewNotAReference reports a relation operation on a plain property.
func NewNotAReference(typeName, prop string) *SchemaError {
	return &SchemaError{
		Code:     ErrCodeNotAReference,
		Type:     typeName,
		Property: prop,
		Message:  fmt.Sprintf("%s.%s is not marked as reference", typeName, prop),
	}
}

func newInvalid(typeName, prop, format string, args ...any) *SchemaError {
	return &SchemaError{
		Code:     ErrCodeInvalidSchema,
		Type:     typeName,
		Property: prop,
		Message:  fmt.Sprintf(format, args...),
	}
}
