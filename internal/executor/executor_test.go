package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/gqlplug/internal/language"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// resultOpts compares results by their wire shape.
var resultOpts = cmp.Options{
	cmpopts.IgnoreFields(GraphQLError{}, "Err"),
	cmpopts.EquateEmpty(),
}

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// mustBuildSchema builds a schema from SDL and marks the listed
// "Type.field" coordinates async.
func mustBuildSchema(t *testing.T, sdl string, async ...string) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	for _, coord := range async {
		typeName, fieldName, _ := strings.Cut(coord, ".")
		f := s.Types[typeName].Field(fieldName)
		require.NotNil(t, f, coord)
		f.Async = true
	}
	return s
}

func TestRouting_SyncVsAsync_Calls(t *testing.T) {
	sch := mustBuildSchema(t, `type Query { a: String b: String }`, "Query.b")
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": NewMockValueResolver("A"),
		"Query.b": NewMockValueResolver("B"),
	})

	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a b }"), "", nil, nil)

	wantRes := &ExecutionResult{Data: map[string]any{"a": "A", "b": "B"}}
	if diff := cmp.Diff(wantRes, gotRes, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	wantCalls := []Call{
		{Kind: CallKindSync, ObjectType: "Query", Field: "a", Args: map[string]any{}},
		{Kind: CallKindAsync, ObjectType: "Query", Field: "b", Args: map[string]any{}, BatchID: 1},
	}
	if diff := cmp.Diff(wantCalls, rt.GetCalls()); diff != "" {
		t.Fatalf("Runtime calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRouting_DepthWiseBatch_Calls(t *testing.T) {
	sch := mustBuildSchema(t, `
		type Query { users: [User!]! }
		type User { name: String! best: User }
	`, "Query.users", "User.best")

	alice := map[string]any{"name": "alice"}
	bob := map[string]any{"name": "bob"}
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.users": NewMockValueResolver([]any{alice, bob}),
		"User.name": func(ctx context.Context, source any, args map[string]any) (any, error) {
			return source.(map[string]any)["name"], nil
		},
		"User.best": func(ctx context.Context, source any, args map[string]any) (any, error) {
			if source.(map[string]any)["name"] == "alice" {
				return bob, nil
			}
			return nil, nil
		},
	})

	doc := mustParseQuery(t, "{ users { name best { name } } }")
	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil, nil)

	wantRes := &ExecutionResult{Data: map[string]any{
		"users": []any{
			map[string]any{"name": "alice", "best": map[string]any{"name": "bob"}},
			map[string]any{"name": "bob", "best": nil},
		},
	}}
	if diff := cmp.Diff(wantRes, gotRes, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	// one batch per async depth, whatever the number of sync fields in between
	batches := map[int][]string{}
	for _, c := range rt.GetCalls() {
		if c.Kind == CallKindAsync {
			batches[c.BatchID] = append(batches[c.BatchID], c.ObjectType+"."+c.Field)
		}
	}
	want := map[int][]string{
		1: {"Query.users"},
		2: {"User.best", "User.best"},
	}
	if diff := cmp.Diff(want, batches); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteValue_NonNull_Propagation_Result(t *testing.T) {
	t.Run("resolver error", func(t *testing.T) {
		sch := mustBuildSchema(t, `
			type Query { obj: Obj! other: String }
			type Obj { a: String! b: String! }
		`, "Obj.b")
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.obj":   NewMockValueResolver(map[string]any{}),
			"Query.other": NewMockValueResolver("still here"),
			"Obj.a":       NewMockErrorResolver(fmt.Errorf("boom")),
			"Obj.b":       NewMockValueResolver("B"),
		})

		got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ obj { a b } other }"), "", nil, nil)

		want := &ExecutionResult{
			Data:   map[string]any{"obj": nil, "other": "still here"},
			Errors: []GraphQLError{{Message: "boom", Path: Path{"obj", "a"}}},
		}
		if diff := cmp.Diff(want, got, resultOpts); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
		for _, c := range rt.GetCalls() {
			require.NotEqual(t, "b", c.Field, "sibling of a failed non-null field must not be resolved")
		}
	})

	t.Run("async null under nullable parent", func(t *testing.T) {
		sch := mustBuildSchema(t, `
			type Query { obj: Obj }
			type Obj { a: String! }
		`, "Obj.a")
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.obj": NewMockValueResolver(map[string]any{}),
			"Obj.a":     NewMockValueResolver(nil),
		})

		got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ obj { a } }"), "", nil, nil)

		want := &ExecutionResult{
			Data:   map[string]any{"obj": nil},
			Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field obj.a", Path: Path{"obj", "a"}}},
		}
		if diff := cmp.Diff(want, got, resultOpts); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCompleteValue_List_Nullability_Result(t *testing.T) {
	sch := mustBuildSchema(t, `type Query { strict: [String!] loose: [String] }`)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.strict": NewMockValueResolver([]any{"x", nil}),
		"Query.loose":  NewMockValueResolver([]any{"x", nil}),
	})

	got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ strict loose }"), "", nil, nil)

	want := &ExecutionResult{
		Data: map[string]any{"strict": nil, "loose": []any{"x", nil}},
		Errors: []GraphQLError{
			{Message: "Cannot return null for non-nullable field strict.1", Path: Path{"strict", 1}},
		},
	}
	if diff := cmp.Diff(want, got, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteValue_Abstract_Result(t *testing.T) {
	sch := mustBuildSchema(t, `
		interface Node { id: ID! }
		type User implements Node { id: ID! name: String }
		type Post implements Node { id: ID! title: String }
		union Item = User | Post
		type Query { node: Node items: [Item] }
	`)
	user := map[string]any{"__typename": "User", "id": "u1", "name": "alice"}
	post := map[string]any{"__typename": "Post", "id": "p1", "title": "hello"}
	field := func(name string) MockResolver {
		return func(ctx context.Context, source any, args map[string]any) (any, error) {
			return source.(map[string]any)[name], nil
		}
	}
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.node":  NewMockValueResolver(user),
		"Query.items": NewMockValueResolver([]any{post, user}),
		"User.id":     field("id"),
		"User.name":   field("name"),
		"Post.id":     field("id"),
		"Post.title":  field("title"),
	})

	doc := mustParseQuery(t, `{
		node { id ... on User { name } }
		items { __typename ...node ... on Post { title } }
	}
	fragment node on Node { id }`)
	got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil, nil)

	want := &ExecutionResult{Data: map[string]any{
		"node": map[string]any{"id": "u1", "name": "alice"},
		"items": []any{
			map[string]any{"__typename": "Post", "id": "p1", "title": "hello"},
			map[string]any{"__typename": "User", "id": "u1"},
		},
	}}
	if diff := cmp.Diff(want, got, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func TestMutation_Serial_Evaluation_Order_Result(t *testing.T) {
	sch := mustBuildSchema(t, `
		type Query { ok: Boolean }
		type Mutation { first: Int second: Int }
	`, "Mutation.first", "Mutation.second")

	var order []string
	step := func(name string, v int) MockResolver {
		return func(ctx context.Context, source any, args map[string]any) (any, error) {
			order = append(order, name)
			return v, nil
		}
	}
	rt := NewMockRuntime(map[string]MockResolver{
		"Mutation.first":  step("first", 1),
		"Mutation.second": step("second", 2),
	})

	got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "mutation { second first }"), "", nil, nil)

	want := &ExecutionResult{Data: map[string]any{"first": 1, "second": 2}}
	if diff := cmp.Diff(want, got, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"second", "first"}, order)

	// each root mutation field gets its own batch
	var batchIDs []int
	for _, c := range rt.GetCalls() {
		batchIDs = append(batchIDs, c.BatchID)
	}
	require.Equal(t, []int{1, 2}, batchIDs)
}

func TestContext_OperationSelection_Result(t *testing.T) {
	sch := mustBuildSchema(t, `type Query { a: String b: String }`)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": NewMockValueResolver("A"),
		"Query.b": NewMockValueResolver("B"),
	})
	exec := NewExecutor(rt, sch)
	doc := mustParseQuery(t, "query One { a } query Two { b }")

	got := exec.ExecuteRequest(context.Background(), doc, "Two", nil, nil)
	if diff := cmp.Diff(&ExecutionResult{Data: map[string]any{"b": "B"}}, got, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	got = exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Nil(t, got.Data)
	require.Equal(t, "operation not found", got.Errors[0].Message)

	got = exec.ExecuteRequest(context.Background(), doc, "Three", nil, nil)
	require.Equal(t, `unknown operation named "Three"`, got.Errors[0].Message)
}

func TestContext_VariableCoercion_Result(t *testing.T) {
	sch := mustBuildSchema(t, `
		enum Order { ASC DESC }
		input Page { first: Int! order: Order = ASC }
		type Query { echo(n: Int!, page: Page, skip: Boolean = false): String }
	`)
	var gotArgs map[string]any
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.echo": func(ctx context.Context, source any, args map[string]any) (any, error) {
			gotArgs = args
			return "ok", nil
		},
	})
	doc := mustParseQuery(t, `query Q($n: Int!, $page: Page, $skip: Boolean) { echo(n: $n, page: $page, skip: $skip) }`)

	vars := map[string]any{
		"n":    json.Number("3"),
		"page": map[string]any{"first": json.Number("10")},
	}
	res := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", vars, nil)
	require.Empty(t, res.Errors)

	want := map[string]any{
		"n":    3,
		"page": map[string]any{"first": 10, "order": "ASC"},
		"skip": false,
	}
	if diff := cmp.Diff(want, gotArgs); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}

	res = NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", map[string]any{"n": 1.5}, nil)
	require.Nil(t, res.Data)
	require.Contains(t, res.Errors[0].Message, "variable $n of type Int! cannot be coerced")
}

type codedError struct{ code string }

func (e *codedError) Error() string              { return "coded failure" }
func (e *codedError) Extensions() map[string]any { return map[string]any{"code": e.code} }

func TestErrors_LocatedPaths_Extensions_Result(t *testing.T) {
	sch := mustBuildSchema(t, `
		type Query { list: [Item] }
		type Item { v: String }
	`, "Item.v")
	cause := &codedError{code: "FORBIDDEN"}
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.list": NewMockValueResolver([]any{map[string]any{}, map[string]any{}}),
		"Item.v":     NewMockErrorResolver(fmt.Errorf("wrapped: %w", cause)),
	})

	got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ list { v } }"), "", nil, nil)

	ext := map[string]any{"code": "FORBIDDEN"}
	want := &ExecutionResult{
		Data: map[string]any{"list": []any{map[string]any{"v": nil}, map[string]any{"v": nil}}},
		Errors: []GraphQLError{
			{Message: "wrapped: coded failure", Path: Path{"list", 0, "v"}, Extensions: ext},
			{Message: "wrapped: coded failure", Path: Path{"list", 1, "v"}, Extensions: ext},
		},
	}
	if diff := cmp.Diff(want, got, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	require.True(t, errors.Is(got.Errors[0], cause))
}

func TestCollectFields_And_Directives_Result(t *testing.T) {
	sch := mustBuildSchema(t, `type Query { a: String b: String c: String }`)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": NewMockValueResolver("A"),
		"Query.b": NewMockValueResolver("B"),
		"Query.c": NewMockValueResolver("C"),
	})
	doc := mustParseQuery(t, `query($yes: Boolean!) {
		c
		alias: a
		b @skip(if: $yes)
		... @include(if: $yes) { a }
	}`)

	got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", map[string]any{"yes": true}, nil)

	want := &ExecutionResult{Data: map[string]any{"c": "C", "alias": "A", "a": "A"}}
	if diff := cmp.Diff(want, got, resultOpts); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	keys := make([]string, 0)
	for _, cf := range collectFields(&executionState{document: doc, variableValues: map[string]any{"yes": true}, schema: sch}, sch.GetQueryType(), doc.Operations[0].SelectionSet).orderedFields() {
		keys = append(keys, cf.ResponseName)
	}
	require.Equal(t, []string{"c", "alias", "a"}, keys)
}
