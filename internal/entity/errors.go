package entity

import (
	"errors"
	"fmt"
)

// AccessKind distinguishes the two unpopulated access failures.
type AccessKind int

const (
	// ReferenceAccess is a non-key field read on a placeholder.
	ReferenceAccess AccessKind = iota

	// CollectionAccess is a read of a back-reference that was never joined.
	CollectionAccess
)

// UnpopulatedAccessError reports a read on data that was never loaded.
type UnpopulatedAccessError struct {
	Kind  AccessKind
	Type  string
	Field string
}

// Error implements the error interface.
func (e *UnpopulatedAccessError) Error() string {
	if e.Kind == CollectionAccess {
		return fmt.Sprintf("Reference %s was not populated. Use JoinWith or UseJoinWith to populate it.", e.Field)
	}
	return fmt.Sprintf("Reference %s was not completely populated (only primary keys). Join or hydrate it before reading %s.", e.Type, e.Field)
}

// IsUnpopulatedAccess reports whether err is an UnpopulatedAccessError.
func IsUnpopulatedAccess(err error) bool {
	var ue *UnpopulatedAccessError
	return errors.As(err, &ue)
}
