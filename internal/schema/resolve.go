package schema

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	language "github.com/hanpama/gqlplug/internal/language"
)

// Path is a response path: field response names and list indices from the
// operation root down to one field occurrence.
type Path []PathElement

type PathElement any

// String renders the path in dotted form, e.g. "users.0.name".
func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		switch v := elem.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString(strconv.Itoa(v))
		default:
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// Key is a unique map key for the path. Unlike String it keeps names and
// indices apart, so a field literally named "0" never collides with an index.
func (p Path) Key() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		default:
			b.WriteByte('/')
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// Parent returns the path without its last element.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Strings returns each element formatted as a string.
func (p Path) Strings() []string {
	out := make([]string, len(p))
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			out[i] = v
		case int:
			out[i] = strconv.Itoa(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

// ResolveInfo describes the field being resolved.
type ResolveInfo struct {
	FieldName  string
	Field      *Field
	ParentType *Type
	ReturnType *TypeRef
	Path       Path
	Schema     *Schema
	Operation  *language.OperationDefinition
	Variables  map[string]any
}

// IsRootField reports whether the field sits directly on an operation root type.
func (info *ResolveInfo) IsRootField() bool { return len(info.Path) == 1 }

// ResolveParams carries everything a resolver needs besides the context.
type ResolveParams struct {
	Source any
	Args   map[string]any
	Info   *ResolveInfo
}

// FieldResolveFn produces a field value. Returning (nil, nil) yields null.
type FieldResolveFn func(ctx context.Context, p ResolveParams) (any, error)

// ResolveTypeFn returns the concrete object type name of an abstract value.
type ResolveTypeFn func(ctx context.Context, value any) (string, error)

// FieldResolver returns the resolver used for f.
func FieldResolver(f *Field) FieldResolveFn {
	if f.Resolve != nil {
		return f.Resolve
	}
	return DefaultResolve
}

// DefaultResolve reads the field from the source value: a map entry, an
// exported struct field (matching name or json tag), or a niladic method.
// Function values found this way are called with (ctx, params) when they
// match FieldResolveFn.
func DefaultResolve(ctx context.Context, p ResolveParams) (any, error) {
	name := p.Info.FieldName
	v := lookupProperty(p.Source, name)
	switch fn := v.(type) {
	case FieldResolveFn:
		return fn(ctx, p)
	case func(context.Context, ResolveParams) (any, error):
		return fn(ctx, p)
	case func() any:
		return fn(), nil
	}
	return v, nil
}

func lookupProperty(source any, name string) any {
	switch src := source.(type) {
	case nil:
		return nil
	case map[string]any:
		return src[name]
	case map[string]string:
		if v, ok := src[name]; ok {
			return v
		}
		return nil
	}

	rv := reflect.ValueOf(source)
	if m := methodByFieldName(rv, name); m.IsValid() {
		out := m.Call(nil)
		if len(out) > 0 {
			return out[0].Interface()
		}
		return nil
	}
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag == name {
				return rv.Field(i).Interface()
			}
		}
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if sf.IsExported() && strings.EqualFold(sf.Name, name) {
				return rv.Field(i).Interface()
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if v.IsValid() {
				return v.Interface()
			}
		}
	}
	return nil
}

func methodByFieldName(rv reflect.Value, name string) reflect.Value {
	if !rv.IsValid() || name == "" {
		return reflect.Value{}
	}
	m := rv.MethodByName(strings.ToUpper(name[:1]) + name[1:])
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() == 0 {
		return reflect.Value{}
	}
	return m
}

// FieldConfig binds a resolver to a field.
type FieldConfig struct {
	Resolve FieldResolveFn
	// Async routes the field through the executor's per-depth batch, where
	// sibling fields are resolved concurrently.
	Async bool
}

// Resolvers maps type name -> field name -> resolver configuration.
type Resolvers map[string]map[string]FieldConfig

// TypeResolvers maps an interface or union name to its type resolver.
type TypeResolvers map[string]ResolveTypeFn

// Attach installs resolvers on the schema. Naming a type or field the schema
// does not define is an error.
func Attach(s *Schema, resolvers Resolvers, typeResolvers TypeResolvers) error {
	for typeName, fields := range resolvers {
		t := s.Types[typeName]
		if t == nil {
			return fmt.Errorf("resolvers: unknown type %q", typeName)
		}
		if t.Kind != TypeKindObject && t.Kind != TypeKindInterface {
			return fmt.Errorf("resolvers: type %q is %s, not an object or interface", typeName, t.Kind)
		}
		for fieldName, cfg := range fields {
			f := t.Field(fieldName)
			if f == nil {
				return fmt.Errorf("resolvers: unknown field %s.%s", typeName, fieldName)
			}
			f.Resolve = cfg.Resolve
			f.Async = cfg.Async
		}
	}
	for typeName, fn := range typeResolvers {
		t := s.Types[typeName]
		if t == nil {
			return fmt.Errorf("type resolvers: unknown type %q", typeName)
		}
		if t.Kind != TypeKindInterface && t.Kind != TypeKindUnion {
			return fmt.Errorf("type resolvers: type %q is %s, not abstract", typeName, t.Kind)
		}
		t.ResolveType = fn
	}
	return nil
}
