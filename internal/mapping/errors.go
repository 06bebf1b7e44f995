package mapping

import (
	"errors"
	"fmt"
)

// Conversion kinds. The kind text is part of the error message.
const (
	KindUUID     = "UUID v4"
	KindObjectID = "ObjectID"
	KindEnum     = "enum value"
	KindBinary   = "base64 binary"
	KindDate     = "date"
	KindNumber   = "number"
	KindInteger  = "integer"
	KindBoolean  = "boolean"
)

// ConversionError reports a value that cannot be converted for a property.
type ConversionError struct {
	Property string
	Kind     string
	Value    any
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	return fmt.Sprintf("Invalid %s given in property %s", e.Kind, e.Property)
}

// IsConversionError reports whether err is a ConversionError.
func IsConversionError(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}
