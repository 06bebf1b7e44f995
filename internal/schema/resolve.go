package schema

import (
	"fmt"
	"strings"
)

// Relation is a resolved back-reference.
//
// A direct relation is stored as Reverse on Target, pointing at the owner.
// A pivot relation is stored as two forward references on Pivot: Left points
// at the owner and Right points at Target.
type Relation struct {
	Property *Property
	Owner    *Schema
	Target   *Schema

	Reverse *Property

	Pivot *Schema
	Left  *Property
	Right *Property
}

// IsPivot reports whether the relation is mediated by a pivot entity.
func (rel *Relation) IsPivot() bool { return rel.Pivot != nil }

// FindReverseReference returns the property on s that forms the other side
// of the relation from, as seen from toType.
//
// Rules, in order:
//  1. from is a back-reference targeting s with MappedBy: the named property.
//  2. s is the pivot of from: the forward reference of s targeting toType.
//     On a self-referencing pivot the first declared reference is returned.
//  3. A property of s whose MappedBy names from wins. Otherwise a via
//     back-reference pairs with back-references of the same pivot, a direct
//     back-reference pairs with forward references, and a forward reference
//     pairs with direct back-references. All must target toType.
//
// Zero or several candidates yield a SchemaError.
func (s *Schema) FindReverseReference(toType string, from *Property) (*Property, error) {
	if from == nil {
		return nil, newInvalid(s.typeName, "", "nil property")
	}
	if !from.IsRelation() {
		return nil, NewNotAReference(from.ownerName(), from.name)
	}

	if from.IsBackReference() && from.mappedBy != "" && from.target == s.typeName {
		p := s.Property(from.mappedBy)
		if p == nil {
			return nil, s.notFound(from, fmt.Sprintf("mappedBy %q not found on %s", from.mappedBy, s.typeName))
		}
		if !p.IsRelation() {
			return nil, NewNotAReference(s.typeName, p.name)
		}
		return p, nil
	}

	if from.IsBackReference() && from.via == s.typeName {
		refs := s.forwardRefsTo(toType)
		switch {
		case len(refs) == 0:
			return nil, s.notFound(from, fmt.Sprintf("pivot %s has no reference to %s", s.typeName, toType))
		case len(refs) == 1:
			return refs[0], nil
		case len(refs) == 2 && from.target == from.ownerName():
			return refs[0], nil
		default:
			return nil, s.ambiguous(from, refs)
		}
	}

	var mapped, candidates []*Property
	for _, p := range s.props {
		if p == from || !p.IsRelation() {
			continue
		}
		if p.IsBackReference() && p.mappedBy == from.name && p.target == from.ownerName() {
			mapped = append(mapped, p)
			continue
		}
		if p.target != toType {
			continue
		}
		if p.IsBackReference() && p.mappedBy != "" && p.mappedBy != from.name {
			continue
		}
		switch {
		case from.IsBackReference() && from.via != "":
			if p.IsBackReference() && p.via == from.via {
				candidates = append(candidates, p)
			}
		case from.IsBackReference():
			if p.IsReference() {
				candidates = append(candidates, p)
			}
		default:
			if p.IsBackReference() && p.via == "" {
				candidates = append(candidates, p)
			}
		}
	}

	if len(mapped) > 0 {
		candidates = mapped
	}
	switch len(candidates) {
	case 0:
		return nil, s.notFound(from, fmt.Sprintf("no reverse reference to %s for %s on %s", toType, from, s.typeName))
	case 1:
		return candidates[0], nil
	default:
		return nil, s.ambiguous(from, candidates)
	}
}

// ResolvePivot returns the two forward references of the pivot of p.
// Left points at the owner of p and right at its target. On a
// self-referencing pivot the first declared reference is left.
func (r *Registry) ResolvePivot(p *Property) (left, right *Property, err error) {
	if !p.IsBackReference() || p.via == "" {
		return nil, nil, newInvalid(p.ownerName(), p.name, "%s is not a pivot back-reference", p)
	}
	pivot, err := r.Get(p.via)
	if err != nil {
		return nil, nil, err
	}

	ownerType := p.ownerName()
	if ownerType == p.target {
		refs := pivot.forwardRefsTo(ownerType)
		switch {
		case len(refs) < 2:
			return nil, nil, pivot.notFound(p, fmt.Sprintf("self-referencing pivot %s needs two references to %s", pivot.typeName, ownerType))
		case len(refs) > 2:
			return nil, nil, pivot.ambiguous(p, refs)
		}
		return refs[0], refs[1], nil
	}

	if left, err = pivot.FindReverseReference(ownerType, p); err != nil {
		return nil, nil, err
	}
	if right, err = pivot.FindReverseReference(p.target, p); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// ResolveBackReference resolves how the back-reference p is stored.
func (r *Registry) ResolveBackReference(p *Property) (*Relation, error) {
	if !p.IsBackReference() {
		return nil, NewNotAReference(p.ownerName(), p.name)
	}
	if p.owner == nil {
		return nil, newInvalid("", p.name, "property %s is not registered", p.name)
	}
	target, err := r.Get(p.target)
	if err != nil {
		return nil, err
	}
	rel := &Relation{Property: p, Owner: p.owner, Target: target}

	if p.via != "" {
		if rel.Pivot, err = r.Get(p.via); err != nil {
			return nil, err
		}
		if rel.Left, rel.Right, err = r.ResolvePivot(p); err != nil {
			return nil, err
		}
		return rel, nil
	}

	rev, err := target.FindReverseReference(p.owner.typeName, p)
	if err != nil {
		return nil, err
	}
	if !rev.IsReference() || rev.cardinality != Single {
		return nil, newInvalid(p.owner.typeName, p.name,
			"reverse of %s must be a single forward reference, got %s", p, rev)
	}
	rel.Reverse = rev
	return rel, nil
}

func (s *Schema) forwardRefsTo(typeName string) []*Property {
	var out []*Property
	for _, p := range s.props {
		if p.IsReference() && p.cardinality == Single && p.target == typeName {
			out = append(out, p)
		}
	}
	return out
}

func (s *Schema) notFound(from *Property, msg string) *SchemaError {
	return &SchemaError{
		Code:     ErrCodeReferenceNotFound,
		Type:     from.ownerName(),
		Property: from.name,
		Message:  msg,
	}
}

func (s *Schema) ambiguous(from *Property, candidates []*Property) *SchemaError {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return &SchemaError{
		Code:     ErrCodeAmbiguousReference,
		Type:     from.ownerName(),
		Property: from.name,
		Message:  fmt.Sprintf("ambiguous reverse reference on %s: %s", s.typeName, strings.Join(names, ", ")),
	}
}
