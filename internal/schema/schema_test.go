package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDL = `
directive @tag(name: String, kind: Color) on FIELD_DEFINITION | OBJECT

enum Color { RED GREEN BLUE }

interface Node { id: ID! }

type User implements Node @tag(kind: RED) {
  id: ID!
  name(upper: Boolean = false): String @tag(name: "display")
  color: Color @deprecated(reason: "use palette")
}

union Entity = User

input Filter { id: ID, name: String }

type Query {
  me: User
  users(filter: Filter): [User!]!
  entity: Entity
}
`

func buildTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := BuildFromSDL(testSDL)
	require.NoError(t, err)
	return s
}

func TestBuildFromSDL(t *testing.T) {
	s := buildTestSchema(t)

	require.Equal(t, "Query", s.QueryType)
	require.Empty(t, s.MutationType)
	require.NotNil(t, s.AST)

	user := s.Types["User"]
	require.NotNil(t, user)
	assert.Equal(t, TypeKindObject, user.Kind)
	assert.Equal(t, []string{"Node"}, user.Interfaces)
	assert.NotNil(t, user.Directives.ForName("tag"))

	var names []string
	for _, f := range user.GetOrderedFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "name", "color"}, names)

	name := user.Field("name")
	require.Len(t, name.Arguments, 1)
	assert.Equal(t, false, name.Arguments[0].DefaultValue)
	assert.Equal(t, "String", name.Type.String())

	color := user.Field("color")
	assert.True(t, color.IsDeprecated)
	assert.Equal(t, "use palette", color.DeprecationReason)

	assert.Equal(t, []string{"User"}, s.Types["Node"].PossibleTypes)
	assert.Equal(t, []string{"User"}, s.Types["Entity"].PossibleTypes)
	assert.Len(t, s.Types["Filter"].InputFields, 2)
	assert.Equal(t, "[User!]!", s.GetQueryType().Field("users").Type.String())

	// Introspection is layered on separately.
	assert.Nil(t, s.GetQueryType().Field("__schema"))
	assert.Nil(t, s.Types["__Type"])
	assert.True(t, s.Types["String"].BuiltIn)
}

func TestBuildFromSDLMultipleSources(t *testing.T) {
	s, err := BuildFromSDL(
		`type Query { version: String @stamp }`,
		`directive @stamp on FIELD_DEFINITION`,
	)
	require.NoError(t, err)
	require.NotNil(t, s.Directives["stamp"])
	assert.False(t, s.Directives["stamp"].BuiltIn)
	assert.True(t, s.Directives["deprecated"].BuiltIn)
}

func TestBuildFromSDLInvalid(t *testing.T) {
	_, err := BuildFromSDL(`type Query { version: Missing }`)
	require.Error(t, err)

	_, err = BuildFromSDL(`type Query { version: String @undeclared }`)
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	s := buildTestSchema(t)
	out := Render(s)

	assert.Contains(t, out, "type User implements Node @tag(kind: RED) {\n")
	assert.Contains(t, out, `  name(upper: Boolean = false): String @tag(name: "display")`)
	assert.Contains(t, out, `  color: Color @deprecated(reason: "use palette")`)
	assert.Contains(t, out, "union Entity = User\n")
	assert.Contains(t, out, "directive @tag(name: String, kind: Color) on FIELD_DEFINITION | OBJECT\n")
	assert.NotContains(t, out, "scalar String")
	assert.NotContains(t, out, "directive @skip")
	assert.NotContains(t, out, "schema {")

	// Rendering is deterministic.
	assert.Equal(t, out, Render(s))

	// The rendered SDL builds into an equivalent schema.
	again, err := BuildFromSDL(out)
	require.NoError(t, err)
	assert.Equal(t, out, Render(again))
}

func TestMapFieldsCopies(t *testing.T) {
	s := buildTestSchema(t)
	original := s.Types["User"].Field("name")

	mapped, err := MapFields(s, func(typ *Type, f *Field) (*Field, error) {
		if typ.Name == "User" && f.Name == "name" {
			f.Resolve = func(context.Context, ResolveParams) (any, error) { return "mapped", nil }
		}
		return f, nil
	})
	require.NoError(t, err)

	assert.Nil(t, original.Resolve)
	assert.Nil(t, s.Types["User"].Field("name").Resolve)
	require.NotNil(t, mapped.Types["User"].Field("name").Resolve)
	assert.Same(t, s.Types["Color"], mapped.Types["Color"])
	assert.Same(t, s.AST, mapped.AST)
}

func TestMapFieldsError(t *testing.T) {
	s := buildTestSchema(t)
	_, err := MapFields(s, func(typ *Type, f *Field) (*Field, error) {
		if f.Name == "color" {
			return nil, &DirectiveError{Directive: "tag", Message: "boom"}
		}
		return f, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User.color")

	var de *DirectiveError
	assert.ErrorAs(t, err, &de)
}

func TestApplyOrder(t *testing.T) {
	s := buildTestSchema(t)
	var order []string
	mk := func(name string) Transform {
		return func(in *Schema) (*Schema, error) {
			order = append(order, name)
			return in, nil
		}
	}
	_, err := Apply(s, mk("first"), nil, mk("second"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestAttach(t *testing.T) {
	s := buildTestSchema(t)
	err := Attach(s, Resolvers{
		"Query": {"me": {Resolve: func(context.Context, ResolveParams) (any, error) { return nil, nil }, Async: true}},
	}, TypeResolvers{
		"Entity": func(context.Context, any) (string, error) { return "User", nil },
	})
	require.NoError(t, err)
	assert.True(t, s.GetQueryType().Field("me").Async)
	assert.NotNil(t, s.Types["Entity"].ResolveType)

	cases := []struct {
		name      string
		resolvers Resolvers
		types     TypeResolvers
		want      string
	}{
		{"unknown type", Resolvers{"Nope": {}}, nil, `unknown type "Nope"`},
		{"unknown field", Resolvers{"Query": {"nope": {}}}, nil, "unknown field Query.nope"},
		{"not an object", Resolvers{"Color": {}}, nil, "not an object"},
		{"not abstract", nil, TypeResolvers{"User": nil}, "not abstract"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Attach(buildTestSchema(t), tc.resolvers, tc.types)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

type profile struct {
	DisplayName string `json:"name"`
	Age         int
	secret      string
}

func (p profile) Greeting() string { return "hi " + p.DisplayName }

func TestDefaultResolve(t *testing.T) {
	resolve := func(source any, field string) any {
		v, err := DefaultResolve(context.Background(), ResolveParams{Source: source, Info: &ResolveInfo{FieldName: field}})
		require.NoError(t, err)
		return v
	}
	p := profile{DisplayName: "ada", Age: 36, secret: "x"}

	assert.Equal(t, "ada", resolve(map[string]any{"name": "ada"}, "name"))
	assert.Equal(t, "ada", resolve(p, "name"))
	assert.Equal(t, 36, resolve(&p, "age"))
	assert.Equal(t, "hi ada", resolve(p, "greeting"))
	assert.Nil(t, resolve(p, "secret"))
	assert.Nil(t, resolve(nil, "name"))
	assert.Nil(t, resolve((*profile)(nil), "name"))

	fn := FieldResolveFn(func(_ context.Context, p ResolveParams) (any, error) { return p.Info.FieldName + "!", nil })
	assert.Equal(t, "lazy!", resolve(map[string]any{"lazy": fn}, "lazy"))
}

func TestPath(t *testing.T) {
	p := Path{"users", 0, "name"}
	assert.Equal(t, "users.0.name", p.String())
	assert.Equal(t, []string{"users", "0", "name"}, p.Strings())
	assert.NotEqual(t, Path{"users", "0"}.Key(), Path{"users", 0}.Key())
	if diff := cmp.Diff(Path{"users", 0}, p.Parent()); diff != "" {
		t.Errorf("parent mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, strings.HasPrefix(p.Key(), "/users[0]"))
}
