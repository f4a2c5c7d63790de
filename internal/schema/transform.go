package schema

import "fmt"

// Transform rewrites a schema, typically by wrapping field resolvers.
type Transform func(*Schema) (*Schema, error)

// FieldMapper returns the replacement for field f of type t. Returning f
// unchanged leaves the field as is. The field passed in is already a copy
// owned by the new schema, so mappers may modify it in place.
type FieldMapper func(t *Type, f *Field) (*Field, error)

// MapFields copies s and applies fn to every field of every object and
// interface type. Introspection types are skipped. The input schema is not
// modified.
func MapFields(s *Schema, fn FieldMapper) (*Schema, error) {
	out := s.Clone()
	for _, t := range out.Types {
		if t.Kind != TypeKindObject && t.Kind != TypeKindInterface {
			continue
		}
		if isIntrospectionName(t.Name) {
			continue
		}
		for i, f := range t.Fields {
			if isIntrospectionName(f.Name) {
				continue
			}
			mapped, err := fn(t, f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
			}
			if mapped == nil {
				return nil, fmt.Errorf("%s.%s: field mapper returned nil", t.Name, f.Name)
			}
			t.Fields[i] = mapped
		}
	}
	return out, nil
}

// Apply runs transforms in order, each receiving the previous result.
func Apply(s *Schema, transforms ...Transform) (*Schema, error) {
	cur := s
	for i, tr := range transforms {
		if tr == nil {
			continue
		}
		next, err := tr(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("transform %d returned a nil schema", i)
		}
		cur = next
	}
	return cur, nil
}

// Clone returns a copy of s whose object and interface types and their
// fields may be modified without affecting s. Other types are shared.
func (s *Schema) Clone() *Schema {
	out := &Schema{
		QueryType:        s.QueryType,
		MutationType:     s.MutationType,
		SubscriptionType: s.SubscriptionType,
		Types:            make(map[string]*Type, len(s.Types)),
		Directives:       make(map[string]*Directive, len(s.Directives)),
		Description:      s.Description,
		AST:              s.AST,
	}
	for name, t := range s.Types {
		if t.Kind == TypeKindObject || t.Kind == TypeKindInterface {
			cp := *t
			cp.Fields = make([]*Field, len(t.Fields))
			for i, f := range t.Fields {
				fc := *f
				cp.Fields[i] = &fc
			}
			out.Types[name] = &cp
			continue
		}
		out.Types[name] = t
	}
	for name, d := range s.Directives {
		out.Directives[name] = d
	}
	return out
}

func isIntrospectionName(name string) bool {
	return len(name) >= 2 && name[0] == '_' && name[1] == '_'
}
