package introspection

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/gqlplug/internal/executor"
	language "github.com/hanpama/gqlplug/internal/language"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

const testSDL = `
enum Color { RED GREEN }
input Filter { color: Color = RED, name: String = "x" }
type Query {
	hello: String
	search(filter: Filter, limit: Int = 10): [String!]!
	old: String @deprecated(reason: "gone")
}
`

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	return sch
}

func execute(t *testing.T, sch *schema.Schema, query string) *executor.ExecutionResult {
	t.Helper()
	wrapper, err := Wrap(executor.NewResolverRuntime(sch), sch)
	require.NoError(t, err)
	doc, errs := language.ParseAndValidateQuery(wrapper.Schema.AST, query)
	require.Empty(t, errs)
	res := executor.NewExecutor(wrapper.Runtime, wrapper.Schema).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	return res
}

func TestIntrospectionEnabled(t *testing.T) {
	res := execute(t, buildSchema(t), "{ __schema { queryType { name } mutationType { name } } }")

	want := map[string]any{
		"__schema": map[string]any{
			"queryType":    map[string]any{"name": "Query"},
			"mutationType": nil,
		},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeQuery(t *testing.T) {
	res := execute(t, buildSchema(t), `{
		__type(name: "Query") {
			kind
			fields(includeDeprecated: true) {
				name
				isDeprecated
				type { kind name ofType { kind name ofType { kind name } } }
				args { name defaultValue }
			}
		}
	}`)

	fields := res.Data.(map[string]any)["__type"].(map[string]any)["fields"].([]any)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.(map[string]any)["name"].(string))
	}
	// introspection root fields stay hidden
	require.Equal(t, []string{"hello", "old", "search"}, names)

	search := fields[2].(map[string]any)
	wantType := map[string]any{
		"kind": "NON_NULL",
		"name": nil,
		"ofType": map[string]any{
			"kind": "LIST",
			"name": nil,
			"ofType": map[string]any{"kind": "NON_NULL", "name": nil},
		},
	}
	if diff := cmp.Diff(wantType, search["type"]); diff != "" {
		t.Fatalf("type mismatch (-want +got):\n%s", diff)
	}
	wantArgs := []any{
		map[string]any{"name": "filter", "defaultValue": nil},
		map[string]any{"name": "limit", "defaultValue": "10"},
	}
	if diff := cmp.Diff(wantArgs, search["args"]); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, true, fields[1].(map[string]any)["isDeprecated"])
}

func TestInputDefaultsAreLiterals(t *testing.T) {
	res := execute(t, buildSchema(t), `{ __type(name: "Filter") { kind inputFields { name defaultValue } } }`)

	want := map[string]any{
		"__type": map[string]any{
			"kind": "INPUT_OBJECT",
			"inputFields": []any{
				map[string]any{"name": "color", "defaultValue": "RED"},
				map[string]any{"name": "name", "defaultValue": `"x"`},
			},
		},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestWrapLeavesSchemaUntouched(t *testing.T) {
	sch := buildSchema(t)
	wrapper, err := Wrap(executor.NewResolverRuntime(sch), sch)
	require.NoError(t, err)

	require.Nil(t, sch.Types["__Schema"])
	require.Nil(t, sch.GetQueryType().Field("__schema"))
	require.NotNil(t, wrapper.Schema.GetQueryType().Field("__schema"))
	require.NotNil(t, wrapper.Schema.Types["__Schema"])
	require.NotNil(t, wrapper.Schema.Types["__Type"].Field("fields"))
}

func TestDirectivesQuery(t *testing.T) {
	res := execute(t, buildSchema(t), `{ __schema { directives { name isRepeatable locations args { name } } } }`)

	byName := map[string]any{}
	for _, d := range res.Data.(map[string]any)["__schema"].(map[string]any)["directives"].([]any) {
		byName[d.(map[string]any)["name"].(string)] = d
	}
	want := map[string]any{
		"name":         "skip",
		"isRepeatable": false,
		"locations":    []any{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
		"args":         []any{map[string]any{"name": "if"}},
	}
	if diff := cmp.Diff(want, byName["skip"]); diff != "" {
		t.Fatalf("skip directive mismatch (-want +got):\n%s", diff)
	}
}

func TestTypenameField(t *testing.T) {
	sch := buildSchema(t)
	doc, err := language.ParseQuery("{__typename}")
	require.NoError(t, err)

	res := executor.NewExecutor(executor.NewResolverRuntime(sch), sch).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, "Query", res.Data.(map[string]any)["__typename"])
}
