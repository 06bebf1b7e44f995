package mapping

import (
	"strconv"
	"strings"

	"github.com/roach88/docmap/internal/schema"
)

// ConvertPath converts the value addressed by a dot path of s.
//
// Non-numeric segments are looked up in the schema. A segment following an
// array or map property addresses one element and is not looked up. When the
// element is an embedded class the walk continues in its schema. Paths that
// cannot be resolved are returned unchanged. Null stays null.
func (m *Mapper) ConvertPath(s *schema.Schema, path string, v any, from, to Format) (any, error) {
	if v == nil {
		return nil, nil
	}
	p, element, ok := resolvePath(s, path)
	if !ok {
		return v, nil
	}
	return m.convertProperty(p, v, from, to, element)
}

// resolvePath returns the property governing the terminal segment of path
// and whether the path addresses an element of it.
func resolvePath(s *schema.Schema, path string) (*schema.Property, bool, bool) {
	cur := s
	var prop *schema.Property
	element := false

	for _, seg := range strings.Split(path, ".") {
		switch {
		case prop == nil:
			prop = cur.Property(seg)
			if prop == nil {
				return nil, false, false
			}
		case !element && prop.IsArray():
			if _, err := strconv.Atoi(seg); err != nil {
				return nil, false, false
			}
			element = true
		case !element && prop.IsMap():
			element = true
		case prop.Type() == schema.TypeClass && !prop.IsRelation():
			sub, err := prop.ResolvedSchema()
			if err != nil {
				return nil, false, false
			}
			cur = sub
			prop = cur.Property(seg)
			element = false
			if prop == nil {
				return nil, false, false
			}
		default:
			return nil, false, false
		}
	}
	return prop, element, true
}

// partial converts every path of data. Top-level derived properties are
// dropped when the store is on either side.
func (m *Mapper) partial(s *schema.Schema, data map[string]any, from, to Format) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for path, v := range data {
		if from == Wire || to == Wire {
			if p := s.Property(path); p != nil && !p.IsPersisted() {
				continue
			}
		}
		conv, err := m.ConvertPath(s, path, v, from, to)
		if err != nil {
			return nil, err
		}
		out[path] = conv
	}
	return out, nil
}

// PartialClassToPlain converts dot-path class values to plain values.
func (m *Mapper) PartialClassToPlain(s *schema.Schema, data map[string]any) (map[string]any, error) {
	return m.partial(s, data, Class, Plain)
}

// PartialPlainToClass converts dot-path plain values to class values.
func (m *Mapper) PartialPlainToClass(s *schema.Schema, data map[string]any) (map[string]any, error) {
	return m.partial(s, data, Plain, Class)
}

// PartialClassToWire converts dot-path class values to store values.
func (m *Mapper) PartialClassToWire(s *schema.Schema, data map[string]any) (map[string]any, error) {
	return m.partial(s, data, Class, Wire)
}

// PartialWireToClass converts dot-path store values to class values.
func (m *Mapper) PartialWireToClass(s *schema.Schema, data map[string]any) (map[string]any, error) {
	return m.partial(s, data, Wire, Class)
}

// PartialPlainToWire converts dot-path plain values to store values.
func (m *Mapper) PartialPlainToWire(s *schema.Schema, data map[string]any) (map[string]any, error) {
	return m.partial(s, data, Plain, Wire)
}

// PartialWireToPlain converts dot-path store values to plain values.
func (m *Mapper) PartialWireToPlain(s *schema.Schema, data map[string]any) (map[string]any, error) {
	return m.partial(s, data, Wire, Plain)
}
