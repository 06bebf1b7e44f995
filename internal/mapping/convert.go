package mapping

import (
	"encoding/base64"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// convertProperty converts a non-nil value of p. With element set, v is a
// single array element or map entry of p.
func (m *Mapper) convertProperty(p *schema.Property, v any, from, to Format, element bool) (any, error) {
	if element || p.Cardinality() == schema.Single {
		return m.convertScalar(p, v, from, to)
	}

	if p.IsArray() {
		items, ok := asSlice(v)
		if !ok {
			return []any{}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			if item == nil {
				continue
			}
			conv, err := m.convertScalar(p, item, from, to)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	}

	entries, ok := asMap(v)
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(entries))
	for k, item := range entries {
		if item == nil {
			out[k] = nil
			continue
		}
		conv, err := m.convertScalar(p, item, from, to)
		if err != nil {
			return nil, err
		}
		out[k] = conv
	}
	return out, nil
}

func (m *Mapper) convertScalar(p *schema.Property, v any, from, to Format) (any, error) {
	if from == to || p.Type() == schema.TypeAny {
		return v, nil
	}
	if p.Type() == schema.TypeClass {
		if p.IsRelation() {
			return m.convertReference(p, v, from, to)
		}
		return m.convertEmbedded(p, v, from, to)
	}

	var err error
	if from != Class {
		if v, err = toClass(p, v, from); err != nil {
			return nil, err
		}
	}
	if to != Class {
		return fromClass(p, v, to)
	}
	return v, nil
}

// toClass converts a plain or wire scalar to its class form.
func toClass(p *schema.Property, v any, from Format) (any, error) {
	switch p.Type() {
	case schema.TypeString:
		return coerceString(v), nil
	case schema.TypeNumber:
		f, ok := coerceFloat(v)
		if !ok {
			return nil, &ConversionError{Property: p.Name(), Kind: KindNumber, Value: v}
		}
		return f, nil
	case schema.TypeInteger:
		i, ok := coerceInt(v)
		if !ok {
			return nil, &ConversionError{Property: p.Name(), Kind: KindInteger, Value: v}
		}
		return i, nil
	case schema.TypeBoolean:
		b, ok := coerceBool(v)
		if !ok {
			return nil, &ConversionError{Property: p.Name(), Kind: KindBoolean, Value: v}
		}
		return b, nil
	case schema.TypeDate:
		t, ok := coerceDate(v)
		if !ok {
			return nil, &ConversionError{Property: p.Name(), Kind: KindDate, Value: v}
		}
		return t, nil
	case schema.TypeUUID:
		if b, ok := v.(wire.Binary); ok {
			id, err := uuid.FromBytes(b.Data)
			if err != nil {
				return nil, &ConversionError{Property: p.Name(), Kind: KindUUID, Value: v}
			}
			return id.String(), nil
		}
		return coerceString(v), nil
	case schema.TypeObjectID:
		if id, ok := v.(wire.ObjectID); ok {
			return id.Hex(), nil
		}
		return coerceString(v), nil
	case schema.TypeBinary:
		switch val := v.(type) {
		case wire.Binary:
			return val.Data, nil
		case []byte:
			return val, nil
		case string:
			data, err := base64.StdEncoding.DecodeString(val)
			if err != nil {
				return nil, &ConversionError{Property: p.Name(), Kind: KindBinary, Value: v}
			}
			return data, nil
		}
		return nil, &ConversionError{Property: p.Name(), Kind: KindBinary, Value: v}
	case schema.TypeEnum:
		return checkEnum(p, v)
	}
	return v, nil
}

// fromClass converts a class scalar to plain or wire form.
func fromClass(p *schema.Property, v any, to Format) (any, error) {
	switch p.Type() {
	case schema.TypeString:
		return coerceString(v), nil
	case schema.TypeNumber, schema.TypeInteger, schema.TypeBoolean:
		return toClass(p, v, Class)
	case schema.TypeDate:
		t, ok := coerceDate(v)
		if !ok {
			return nil, &ConversionError{Property: p.Name(), Kind: KindDate, Value: v}
		}
		if to == Plain {
			return coerceString(t), nil
		}
		return t, nil
	case schema.TypeUUID:
		if b, ok := v.(wire.Binary); ok && b.Subtype == wire.SubtypeUUID {
			if to == Wire {
				return b, nil
			}
			return toClass(p, b, Wire)
		}
		s, ok := v.(string)
		if !ok {
			return nil, &ConversionError{Property: p.Name(), Kind: KindUUID, Value: v}
		}
		id, err := uuid.Parse(s)
		if err != nil || id.Version() != 4 {
			return nil, &ConversionError{Property: p.Name(), Kind: KindUUID, Value: v}
		}
		if to == Plain {
			return id.String(), nil
		}
		return wire.Binary{Subtype: wire.SubtypeUUID, Data: id[:]}, nil
	case schema.TypeObjectID:
		var id wire.ObjectID
		switch val := v.(type) {
		case wire.ObjectID:
			id = val
		case string:
			parsed, err := wire.ParseObjectID(val)
			if err != nil {
				return nil, &ConversionError{Property: p.Name(), Kind: KindObjectID, Value: v}
			}
			id = parsed
		default:
			return nil, &ConversionError{Property: p.Name(), Kind: KindObjectID, Value: v}
		}
		if to == Plain {
			return id.Hex(), nil
		}
		return id, nil
	case schema.TypeBinary:
		var data []byte
		switch val := v.(type) {
		case []byte:
			data = val
		case wire.Binary:
			data = val.Data
		default:
			return nil, &ConversionError{Property: p.Name(), Kind: KindBinary, Value: v}
		}
		if to == Plain {
			return base64.StdEncoding.EncodeToString(data), nil
		}
		return wire.Binary{Subtype: wire.SubtypeGeneric, Data: data}, nil
	case schema.TypeEnum:
		return checkEnum(p, v)
	}
	return v, nil
}

func checkEnum(p *schema.Property, v any) (any, error) {
	s := coerceString(v)
	if !slices.Contains(p.EnumMembers(), s) {
		return nil, &ConversionError{Property: p.Name(), Kind: KindEnum, Value: v}
	}
	return s, nil
}

// convertEmbedded recurses into the schema of an embedded class value.
func (m *Mapper) convertEmbedded(p *schema.Property, v any, from, to Format) (any, error) {
	sub, err := p.ResolvedSchema()
	if err != nil {
		return nil, err
	}

	if from == Class {
		if e, ok := v.(*entity.Entity); ok {
			return m.convertDoc(sub, e.Values(), Class, to)
		}
		// Plain data standing in for an instance.
		doc, ok := asMap(v)
		if !ok {
			return map[string]any{}, nil
		}
		return m.convertDoc(sub, doc, Plain, to)
	}

	if e, ok := v.(*entity.Entity); ok {
		if to == Class {
			return e, nil
		}
		return m.convertDoc(sub, e.Values(), Class, to)
	}
	doc, ok := asMap(v)
	if !ok {
		doc = map[string]any{}
	}
	if to == Class {
		values, err := m.convertDoc(sub, doc, from, Class)
		if err != nil {
			return nil, err
		}
		return entity.Load(sub, values), nil
	}
	return m.convertDoc(sub, doc, from, to)
}

// convertReference converts a forward reference through the primary key of
// its target. Entities become their key; keys in class form become
// placeholders from the reference factory.
func (m *Mapper) convertReference(p *schema.Property, v any, from, to Format) (any, error) {
	target, err := p.ResolvedSchema()
	if err != nil {
		return nil, err
	}
	pk := primaryKeyProperty(target)

	if e, ok := v.(*entity.Entity); ok {
		if to == Class {
			return e, nil
		}
		return fromClass(pk, e.ID(), to)
	}
	if doc, ok := asMap(v); ok {
		key, ok := doc[pk.Name()]
		if !ok || key == nil {
			return nil, &ConversionError{Property: p.Name(), Kind: "reference", Value: v}
		}
		v = key
	}

	key := v
	if from != Class {
		if key, err = toClass(pk, v, from); err != nil {
			return nil, err
		}
	}
	if to == Class {
		return m.refs(target, key), nil
	}
	return fromClass(pk, key, to)
}

var storeIDProperty = schema.ObjectID(wire.IDField)

// primaryKeyProperty returns the primary key of s. Types without one are
// keyed by the store-native identifier.
func primaryKeyProperty(s *schema.Schema) *schema.Property {
	if pk := s.PrimaryKey(); pk != nil {
		return pk
	}
	return storeIDProperty
}
