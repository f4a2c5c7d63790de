package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/gqlplug/internal/language"
)

// BuildFromSDL parses and validates SDL sources and returns the corresponding
// Schema. Sources are concatenated, so type definitions and directive
// declarations may be spread across them. A missing schema definition
// defaults to the Query/Mutation/Subscription convention.
func BuildFromSDL(sdl ...string) (*Schema, error) {
	sources := make([]*language.Source, 0, len(sdl))
	for i, s := range sdl {
		sources = append(sources, &language.Source{Name: fmt.Sprintf("schema_%d.graphql", i), Input: s})
	}
	def, err := language.LoadSchema(sources...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return BuildFromAST(def)
}

// BuildFromAST converts a validated schema definition into an executable
// Schema. Introspection types are left to the introspection package.
func BuildFromAST(def *language.SchemaDefinition) (*Schema, error) {
	s := NewSchema(def.Description)
	s.AST = def
	if def.Query != nil {
		s.SetQueryType(def.Query.Name)
	}
	if def.Mutation != nil {
		s.SetMutationType(def.Mutation.Name)
	}
	if def.Subscription != nil {
		s.SetSubscriptionType(def.Subscription.Name)
	}

	names := make([]string, 0, len(def.Types))
	for name := range def.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := def.Types[name]
		if isIntrospectionName(name) {
			continue
		}
		if builtin, ok := builtinScalars[name]; ok {
			s.AddType(builtin)
			continue
		}
		switch d.Kind {
		case ast.Object:
			s.AddType(buildComposite(d, TypeKindObject))
		case ast.Interface:
			t := buildComposite(d, TypeKindInterface)
			for _, pt := range def.GetPossibleTypes(d) {
				t.AddPossibleType(pt.Name)
			}
			s.AddType(t)
		case ast.Union:
			t := NewType(d.Name, TypeKindUnion, d.Description)
			t.Directives = d.Directives
			for _, member := range d.Types {
				t.AddPossibleType(member)
			}
			s.AddType(t)
		case ast.Enum:
			s.AddType(buildEnum(d))
		case ast.InputObject:
			s.AddType(buildInput(d))
		case ast.Scalar:
			t := NewType(d.Name, TypeKindScalar, d.Description)
			t.Directives = d.Directives
			if sb := d.Directives.ForName("specifiedBy"); sb != nil {
				if url := sb.Arguments.ForName("url"); url != nil && url.Value != nil {
					raw := url.Value.Raw
					t.SpecifiedByURL = &raw
				}
			}
			s.AddType(t)
		default:
			return nil, fmt.Errorf("type %s: unsupported kind %s", d.Name, d.Kind)
		}
	}

	for name, dd := range def.Directives {
		if _, ok := s.Directives[name]; ok {
			continue
		}
		s.AddDirective(buildDirective(dd))
	}
	return s, nil
}

var prelude = sync.OnceValues(func() (*language.SchemaDefinition, error) {
	return language.LoadSchema(&language.Source{Name: "prelude.graphql", Input: "type Query { _: Boolean }"})
})

// IntrospectionTypes builds the __Schema family of types declared by the
// GraphQL prelude. Every call returns fresh values.
func IntrospectionTypes() ([]*Type, error) {
	def, err := prelude()
	if err != nil {
		return nil, fmt.Errorf("load prelude: %w", err)
	}
	var types []*Type
	for name, d := range def.Types {
		if !isIntrospectionName(name) {
			continue
		}
		switch d.Kind {
		case ast.Object:
			types = append(types, buildComposite(d, TypeKindObject))
		case ast.Enum:
			types = append(types, buildEnum(d))
		default:
			return nil, fmt.Errorf("type %s: unsupported kind %s", name, d.Kind)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

func buildComposite(d *ast.Definition, kind TypeKind) *Type {
	t := NewType(d.Name, kind, d.Description)
	t.Directives = d.Directives
	for _, name := range d.Interfaces {
		t.AddInterface(name)
	}
	for _, fd := range d.Fields {
		if isIntrospectionName(fd.Name) {
			continue
		}
		t.AddField(buildField(fd))
	}
	return t
}

func buildField(fd *ast.FieldDefinition) *Field {
	f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type))
	f.Directives = fd.Directives
	if reason, ok := deprecation(fd.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range fd.Arguments {
		in := NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type)).
			SetDefault(constValue(arg.DefaultValue))
		if reason, ok := deprecation(arg.Directives); ok {
			in.Deprecate(reason)
		}
		f.AddArgument(in)
	}
	return f
}

func buildEnum(d *ast.Definition) *Type {
	t := NewType(d.Name, TypeKindEnum, d.Description)
	t.Directives = d.Directives
	for _, v := range d.EnumValues {
		e := NewEnumValue(v.Name, v.Description)
		if reason, ok := deprecation(v.Directives); ok {
			e.Deprecate(reason)
		}
		t.AddEnumValue(e)
	}
	return t
}

func buildInput(d *ast.Definition) *Type {
	t := NewType(d.Name, TypeKindInputObject, d.Description).
		SetOneOf(d.Directives.ForName("oneOf") != nil)
	t.Directives = d.Directives
	for _, fd := range d.Fields {
		in := NewInputValue(fd.Name, fd.Description, buildTypeRef(fd.Type)).
			SetDefault(constValue(fd.DefaultValue))
		if reason, ok := deprecation(fd.Directives); ok {
			in.Deprecate(reason)
		}
		t.AddInputField(in)
	}
	return t
}

func buildDirective(dd *ast.DirectiveDefinition) *Directive {
	d := NewDirective(dd.Name, dd.Description).SetRepeatable(dd.IsRepeatable)
	d.BuiltIn = dd.Position != nil && dd.Position.Src != nil && dd.Position.Src.BuiltIn
	for _, loc := range dd.Locations {
		d.AddLocation(string(loc))
	}
	for _, arg := range dd.Arguments {
		d.AddArgument(NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type)).
			SetDefault(constValue(arg.DefaultValue)))
	}
	return d
}

func buildTypeRef(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		ref = NonNullType(ref)
	}
	return ref
}

func deprecation(list ast.DirectiveList) (string, bool) {
	d := list.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "No longer supported", true
}

func constValue(v *ast.Value) any {
	if v == nil {
		return nil
	}
	out, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return out
}
