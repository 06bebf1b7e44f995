package schemaload

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docmap/internal/schema"
)

// Generators that a property's default field may name.
var generators = map[string]func() any{
	"uuid": schema.NewUUID,
}

// CompileEntity parses one entity declaration into an unregistered schema.
//
// The CUE value is the entity struct itself, e.g.:
//
//	v := ctx.CompileString(src)
//	s, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.User")))
func CompileEntity(v cue.Value) (*schema.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var typeName string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		typeName = labels[len(labels)-1].String()
	}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, &CompileError{
			Field:   "properties",
			Message: "properties are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var props []*schema.Property
	for iter.Next() {
		p, err := compileProperty(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}

	s := schema.New(typeName, props...)

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		s.Named(name)
	}

	return s, nil
}

// compileProperty builds a property from its declaration. A type that is
// not a builtin names the target entity of a class property.
func compileProperty(name string, v cue.Value) (*schema.Property, error) {
	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("property %s has no type", name),
			Pos:     v.Pos(),
		}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var p *schema.Property
	switch t, ok := schema.ParseType(typeName); {
	case !ok:
		p = schema.Class(name, typeName)
	case t == schema.TypeEnum:
		members, err := stringList(v, "enum")
		if err != nil {
			return nil, err
		}
		p = schema.Enum(name, members...)
	case t == schema.TypeClass:
		return nil, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("property %s: use the target entity name instead of class", name),
			Pos:     typeVal.Pos(),
		}
	default:
		p = builtin(name, t)
	}

	flags := []struct {
		field string
		apply func() *schema.Property
	}{
		{"array", p.Array},
		{"map", p.Map},
		{"primary", p.Primary},
		{"index", p.Index},
		{"optional", p.Optional},
		{"nullable", p.Nullable},
		{"parent", p.Parent},
		{"reference", p.Reference},
	}
	for _, f := range flags {
		set, err := boolField(v, f.field)
		if err != nil {
			return nil, err
		}
		if set {
			f.apply()
		}
	}

	backVal := v.LookupPath(cue.ParsePath("backReference"))
	if backVal.Exists() {
		var opts []schema.BackReferenceOption
		for _, field := range []string{"mappedBy", "via"} {
			fv := backVal.LookupPath(cue.ParsePath(field))
			if !fv.Exists() {
				continue
			}
			s, err := fv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if field == "mappedBy" {
				opts = append(opts, schema.MappedBy(s))
			} else {
				opts = append(opts, schema.Via(s))
			}
		}
		p.BackReference(opts...)
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		gen, err := defVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		fn, ok := generators[gen]
		if !ok {
			return nil, &CompileError{
				Field:   "default",
				Message: fmt.Sprintf("property %s: unknown default generator %q", name, gen),
				Pos:     defVal.Pos(),
			}
		}
		p.Default(fn)
	}

	return p, nil
}

func builtin(name string, t schema.Type) *schema.Property {
	switch t {
	case schema.TypeString:
		return schema.String(name)
	case schema.TypeNumber:
		return schema.Number(name)
	case schema.TypeInteger:
		return schema.Integer(name)
	case schema.TypeBoolean:
		return schema.Boolean(name)
	case schema.TypeDate:
		return schema.Date(name)
	case schema.TypeUUID:
		return schema.UUID(name)
	case schema.TypeObjectID:
		return schema.ObjectID(name)
	case schema.TypeBinary:
		return schema.Binary(name)
	default:
		return schema.Any(name)
	}
}

func boolField(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil, &CompileError{
			Field:   field,
			Message: field + " members are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
