// Package mapping converts records between the class-instance, plain and
// store-wire representations.
//
// Representations per property type:
//
//	type      class        plain            wire
//	uuid      string       string           wire.Binary{Subtype: 4}
//	objectId  string(hex)  string(hex)      wire.ObjectID
//	binary    []byte       base64 string    wire.Binary{Subtype: 0}
//	date      time.Time    RFC3339 string   time.Time
//	class     *Entity      map[string]any   map[string]any
//	reference *Entity      primary key      primary key
//	any       as given     as given         as given
//
// Full conversion walks the declared properties in order. Partial conversion
// walks a dot path through the schema and converts only the terminal value.
package mapping

import (
	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// Format is one of the three record representations.
type Format int

const (
	Class Format = iota
	Plain
	Wire
)

func (f Format) String() string {
	switch f {
	case Class:
		return "class"
	case Plain:
		return "plain"
	case Wire:
		return "wire"
	}
	return "unknown"
}

// ReferenceFactory returns the instance standing for a forward reference
// with the given primary key in class form.
type ReferenceFactory func(target *schema.Schema, pk any) *entity.Entity

// Mapper converts records for registered schemas.
type Mapper struct {
	refs ReferenceFactory
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithReferenceFactory sets how reference placeholders are created.
// The default creates a fresh unpopulated entity per reference.
func WithReferenceFactory(f ReferenceFactory) Option {
	return func(m *Mapper) { m.refs = f }
}

// New returns a Mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{refs: entity.NewReference}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// With returns a copy of m with the options applied.
func (m *Mapper) With(opts ...Option) *Mapper {
	cp := *m
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// ClassToPlain converts an instance to plain data.
func (m *Mapper) ClassToPlain(e *entity.Entity) (map[string]any, error) {
	return m.convertDoc(e.Schema(), e.Values(), Class, Plain)
}

// ClassToWire converts an instance to a store document.
func (m *Mapper) ClassToWire(e *entity.Entity) (wire.Document, error) {
	return m.convertDoc(e.Schema(), e.Values(), Class, Wire)
}

// PlainToClass builds a fresh instance from plain data. Defaults apply to
// fields the data does not carry.
func (m *Mapper) PlainToClass(s *schema.Schema, data map[string]any) (*entity.Entity, error) {
	values, err := m.convertDoc(s, data, Plain, Class)
	if err != nil {
		return nil, err
	}
	e := entity.New(s)
	for k, v := range values {
		if err := e.Set(k, v); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// WireToClass builds a populated instance from a store document. Relations
// not carried by the document are left unpopulated.
func (m *Mapper) WireToClass(s *schema.Schema, doc wire.Document) (*entity.Entity, error) {
	values, err := m.convertDoc(s, doc, Wire, Class)
	if err != nil {
		return nil, err
	}
	if s.PrimaryKey() == nil {
		if id, ok := doc[wire.IDField].(wire.ObjectID); ok {
			values[wire.IDField] = id.Hex()
		}
	}
	e := entity.Load(s, values)
	e.SetLastKnownPK(e.ID())
	return e, nil
}

// PlainToWire converts plain data to a store document.
func (m *Mapper) PlainToWire(s *schema.Schema, data map[string]any) (wire.Document, error) {
	return m.convertDoc(s, data, Plain, Wire)
}

// WireToPlain converts a store document to plain data.
func (m *Mapper) WireToPlain(s *schema.Schema, doc wire.Document) (map[string]any, error) {
	return m.convertDoc(s, doc, Wire, Plain)
}

// Convert converts a full record between any two formats. Class records are
// passed and returned as *entity.Entity.
func (m *Mapper) Convert(s *schema.Schema, v any, from, to Format) (any, error) {
	switch {
	case from == to:
		return v, nil
	case from == Class:
		e, ok := v.(*entity.Entity)
		if !ok {
			return nil, &ConversionError{Property: s.TypeName(), Kind: "instance", Value: v}
		}
		return m.convertDoc(s, e.Values(), Class, to)
	}
	doc, ok := asMap(v)
	if !ok {
		return nil, &ConversionError{Property: s.TypeName(), Kind: "document", Value: v}
	}
	switch {
	case to == Class && from == Wire:
		return m.WireToClass(s, doc)
	case to == Class:
		return m.PlainToClass(s, doc)
	}
	return m.convertDoc(s, doc, from, to)
}

// convertDoc converts the declared fields of doc. Back-references and parent
// references are derived and never carried. Null survives only on nullable
// fields; absent fields stay absent.
func (m *Mapper) convertDoc(s *schema.Schema, doc map[string]any, from, to Format) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for _, p := range s.Properties() {
		if !p.IsPersisted() {
			continue
		}
		v, ok := doc[p.Name()]
		if !ok {
			continue
		}
		if v == nil {
			if p.IsNullable() {
				out[p.Name()] = nil
			}
			continue
		}
		conv, err := m.convertProperty(p, v, from, to, false)
		if err != nil {
			return nil, err
		}
		out[p.Name()] = conv
	}
	return out, nil
}
