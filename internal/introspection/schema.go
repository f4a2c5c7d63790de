package introspection

import (
	"fmt"
	"maps"

	schema "github.com/hanpama/gqlplug/internal/schema"
)

// withIntrospection returns a copy of s whose query root also serves
// __schema and __type. Types and fields of s are shared, not copied.
func withIntrospection(s *schema.Schema) (*schema.Schema, error) {
	types, err := schema.IntrospectionTypes()
	if err != nil {
		return nil, err
	}
	out := *s
	out.Types = maps.Clone(s.Types)
	for _, t := range types {
		if _, ok := out.Types[t.Name]; ok {
			return nil, fmt.Errorf("type %s is reserved for introspection", t.Name)
		}
		out.Types[t.Name] = t
	}

	q := s.GetQueryType()
	if q == nil {
		return &out, nil
	}
	root := *q
	root.Fields = make([]*schema.Field, 0, len(q.Fields)+2)
	for _, f := range q.Fields {
		if !isIntrospectionName(f.Name) {
			root.Fields = append(root.Fields, f)
		}
	}
	root.Fields = append(root.Fields,
		schema.NewField("__schema", "Access the current type schema of this server.",
			schema.NonNullType(schema.NamedType("__Schema"))),
		schema.NewField("__type", "Request the type information of a single type.",
			schema.NamedType("__Type")).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.",
				schema.NonNullType(schema.NamedType("String")))),
	)
	out.Types[q.Name] = &root
	return &out, nil
}
