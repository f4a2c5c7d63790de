package executor

import (
	"context"
	"sync"

	schema "github.com/hanpama/gqlplug/internal/schema"
)

// MockResolver resolves one field of one source value.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

// Call records one resolver invocation. Items of one async batch share a
// BatchID; sync calls have none.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

// MockRuntime resolves "Type.field" keys from a fixed table and records
// every call. Unknown keys resolve to nil.
type MockRuntime struct {
	resolvers map[string]MockResolver

	mu      sync.Mutex
	calls   []Call
	batches int
}

func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	return &MockRuntime{resolvers: resolvers}
}

func (m *MockRuntime) call(ctx context.Context, c Call) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
	if r := m.resolvers[c.ObjectType+"."+c.Field]; r != nil {
		return r(ctx, c.Source, c.Args)
	}
	return nil, nil
}

func (m *MockRuntime) ResolveSync(ctx context.Context, p schema.ResolveParams) (any, error) {
	return m.call(ctx, Call{
		Kind:       CallKindSync,
		ObjectType: p.Info.ParentType.Name,
		Field:      p.Info.FieldName,
		Source:     p.Source,
		Args:       p.Args,
	})
}

// BatchResolveAsync resolves tasks grouped by field, groups in order of
// first appearance. Results keep task order.
func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	if len(tasks) == 0 {
		return nil
	}
	m.mu.Lock()
	m.batches++
	batch := m.batches
	m.mu.Unlock()

	var order []string
	groups := map[string][]int{}
	for i, t := range tasks {
		key := t.ObjectType + "." + t.Field
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	results := make([]AsyncResolveResult, len(tasks))
	for _, key := range order {
		for _, i := range groups[key] {
			t := tasks[i]
			v, err := m.call(ctx, Call{
				Kind:       CallKindAsync,
				ObjectType: t.ObjectType,
				Field:      t.Field,
				Source:     t.Source,
				Args:       t.Args,
				BatchID:    batch,
			})
			results[i] = AsyncResolveResult{Value: v, Error: err}
		}
	}
	return results
}

func (m *MockRuntime) ResolveType(_ context.Context, _ string, value any) (string, error) {
	return DefaultResolveType(value)
}

func (m *MockRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

// GetCalls returns the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
