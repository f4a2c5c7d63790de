package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	schema "github.com/hanpama/gqlplug/internal/schema"
)

// LeafSerializer serializes a custom scalar value.
type LeafSerializer func(value any) (any, error)

// ResolverRuntime is the Runtime backed by the resolvers attached to a
// schema. Sync fields run inline; each async batch runs concurrently.
type ResolverRuntime struct {
	schema      *schema.Schema
	concurrency int
	scalars     map[string]LeafSerializer
}

type RuntimeOption func(*ResolverRuntime)

// WithConcurrency bounds the number of async resolvers running at once.
// Zero or less means unbounded.
func WithConcurrency(n int) RuntimeOption {
	return func(r *ResolverRuntime) { r.concurrency = n }
}

// WithScalar registers a serializer for a custom scalar.
func WithScalar(name string, fn LeafSerializer) RuntimeOption {
	return func(r *ResolverRuntime) { r.scalars[name] = fn }
}

func NewResolverRuntime(s *schema.Schema, opts ...RuntimeOption) *ResolverRuntime {
	r := &ResolverRuntime{schema: s, scalars: make(map[string]LeafSerializer)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ResolverRuntime) ResolveSync(ctx context.Context, p schema.ResolveParams) (any, error) {
	return resolveField(ctx, p)
}

func (r *ResolverRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	results := make([]AsyncResolveResult, len(tasks))
	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, task := range tasks {
		g.Go(func() error {
			v, err := resolveField(ctx, task.Params())
			results[i] = AsyncResolveResult{Value: v, Error: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func resolveField(ctx context.Context, p schema.ResolveParams) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema.FieldResolver(p.Info.Field)(ctx, p)
}

// PanicError is returned for a resolver that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("resolver panic: %v", e.Value) }

func (r *ResolverRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if t := r.schema.Types[abstractType]; t != nil && t.ResolveType != nil {
		return t.ResolveType(ctx, value)
	}
	return DefaultResolveType(value)
}

// TypeNamer is implemented by values that know their GraphQL object type.
type TypeNamer interface {
	GraphQLTypeName() string
}

// DefaultResolveType reads the concrete type name from a "__typename" map
// entry or a TypeNamer.
func DefaultResolveType(value any) (string, error) {
	switch v := value.(type) {
	case TypeNamer:
		return v.GraphQLTypeName(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type of %T", value)
}

func (r *ResolverRuntime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		value = rv.Elem().Interface()
	}
	switch typeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String", "ID":
		return serializeString(value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", value)
	}
	t := r.schema.Types[typeName]
	if t != nil && t.Kind == schema.TypeKindEnum {
		name, err := serializeString(value)
		if err != nil {
			return nil, err
		}
		for _, ev := range t.EnumValues {
			if ev.Name == name {
				return name, nil
			}
		}
		return nil, fmt.Errorf("Enum %q cannot represent value: %v", typeName, value)
	}
	if fn, ok := r.scalars[typeName]; ok {
		return fn(value)
	}
	return value, nil
}

func serializeInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
		}
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
		}
		n = i
	default:
		return nil, fmt.Errorf("Int cannot represent value: %v", value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
	}
	return int(n), nil
}

func serializeFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return nil, fmt.Errorf("Float cannot represent value: %v", value)
}

func serializeString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	case bool, int, int32, int64, float64, json.Number:
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("String cannot represent value: %v", value)
}
