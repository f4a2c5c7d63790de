package introspection

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	executor "github.com/hanpama/gqlplug/internal/executor"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// Wrapper holds the runtime and the schema extended with introspection.
type Wrapper struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap returns a Runtime that answers __schema and __type and delegates
// everything else to base. The input schema is not modified.
func Wrap(base executor.Runtime, sch *schema.Schema) (*Wrapper, error) {
	extended, err := withIntrospection(sch)
	if err != nil {
		return nil, fmt.Errorf("introspection: %w", err)
	}
	return &Wrapper{
		Runtime: &runtime{base: base, schema: extended},
		Schema:  extended,
	}, nil
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema
}

func (r *runtime) ResolveSync(ctx context.Context, p schema.ResolveParams) (any, error) {
	field, args := p.Info.FieldName, p.Args

	switch src := p.Source.(type) {
	case *schema.Schema:
		if v, ok := resolveSchemaField(src, field); ok {
			return v, nil
		}
	case *schema.Type:
		if v, ok := resolveTypeField(r.schema, src, field, args); ok {
			return v, nil
		}
	case *schema.TypeRef:
		if v, ok := resolveTypeRefField(r.schema, src, field, args); ok {
			return v, nil
		}
	case *schema.Field:
		if v, ok := resolveFieldField(src, field, args); ok {
			return v, nil
		}
	case *schema.InputValue:
		if v, ok := resolveInputValueField(r.schema, src, field); ok {
			return v, nil
		}
	case *schema.EnumValue:
		if v, ok := resolveEnumValueField(src, field); ok {
			return v, nil
		}
	case *schema.Directive:
		if v, ok := resolveDirectiveField(src, field, args); ok {
			return v, nil
		}
	}

	if p.Info.ParentType != nil && p.Info.ParentType.Name == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			return r.resolveTypeQuery(args), nil
		}
	}

	return r.base.ResolveSync(ctx, p)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	if isIntrospectionName(typ) {
		return value, nil
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *runtime) resolveTypeQuery(args map[string]any) *schema.Type {
	name, _ := args["name"].(string)
	if name == "" {
		return nil
	}
	return r.schema.Types[name]
}

func isIntrospectionName(name string) bool { return strings.HasPrefix(name, "__") }

func resolveSchemaTypes(sch *schema.Schema) []*schema.Type {
	if sch.Types == nil {
		return []*schema.Type{}
	}
	out := make([]*schema.Type, 0, len(sch.Types))
	for _, t := range sch.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveSchemaDirectives(sch *schema.Schema) []*schema.Directive {
	if sch.Directives == nil {
		return []*schema.Directive{}
	}
	dirs := make([]*schema.Directive, 0, len(sch.Directives))
	for _, d := range sch.Directives {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	return dirs
}

func resolveTypeFields(t *schema.Type, args map[string]any) []*schema.Field {
	if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*schema.Field{}
	for _, f := range t.GetOrderedFields() {
		if isIntrospectionName(f.Name) {
			continue
		}
		if !includeDeprecated && f.IsDeprecated {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveTypeInterfaces(sch *schema.Schema, t *schema.Type) []*schema.Type {
	if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
		return nil
	}
	out := make([]*schema.Type, 0, len(t.Interfaces))
	for _, name := range t.Interfaces {
		if def := sch.Types[name]; def != nil {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveTypePossibleTypes(sch *schema.Schema, t *schema.Type) []*schema.Type {
	if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
		return nil
	}
	pts := []*schema.Type{}
	for _, name := range t.PossibleTypes {
		if def := sch.Types[name]; def != nil {
			pts = append(pts, def)
		}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Name < pts[j].Name })
	return pts
}

func resolveTypeEnumValues(t *schema.Type, args map[string]any) []*schema.EnumValue {
	if t.Kind != schema.TypeKindEnum {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*schema.EnumValue{}
	for _, ev := range t.EnumValues {
		if !includeDeprecated && ev.IsDeprecated {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveTypeInputFields(t *schema.Type, args map[string]any) []*schema.InputValue {
	if t.Kind != schema.TypeKindInputObject {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*schema.InputValue{}
	for _, iv := range t.GetOrderedInputFields() {
		if !includeDeprecated && iv.IsDeprecated {
			continue
		}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveFieldArgs(f *schema.Field, args map[string]any) []*schema.InputValue {
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*schema.InputValue{}
	for _, a := range f.GetOrderedArguments() {
		if !includeDeprecated && a.IsDeprecated {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveFieldDeprecationReason(f *schema.Field) *string {
	if f.IsDeprecated {
		return &f.DeprecationReason
	}
	return nil
}

func resolveInputValueDefaultValue(sch *schema.Schema, a *schema.InputValue) *string {
	if a.DefaultValue != nil {
		value := literal(sch, a.Type, a.DefaultValue)
		return &value
	}
	return nil
}

// literal renders a Go input value as a GraphQL value literal.
func literal(sch *schema.Schema, t *schema.TypeRef, v any) string {
	if v == nil {
		return "null"
	}
	if t != nil && t.Kind == schema.TypeRefKindNonNull {
		return literal(sch, t.OfType, v)
	}
	switch val := v.(type) {
	case string:
		if t != nil && t.Kind == schema.TypeRefKindNamed {
			if def := sch.Types[t.Named]; def != nil && def.Kind == schema.TypeKindEnum {
				return val
			}
		}
		return strconv.Quote(val)
	case []any:
		var inner *schema.TypeRef
		if t != nil && t.Kind == schema.TypeRefKindList {
			inner = t.OfType
		}
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = literal(sch, inner, item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		var def *schema.Type
		if t != nil {
			def = sch.Types[schema.GetNamedType(t)]
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			var ft *schema.TypeRef
			if def != nil {
				for _, f := range def.InputFields {
					if f.Name == k {
						ft = f.Type
					}
				}
			}
			parts[i] = k + ": " + literal(sch, ft, val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("%v", v)
}

func resolveInputValueDeprecationReason(a *schema.InputValue) *string {
	if a.IsDeprecated {
		return &a.DeprecationReason
	}
	return nil
}

func resolveEnumValueDeprecationReason(ev *schema.EnumValue) *string {
	if ev.IsDeprecated {
		return &ev.DeprecationReason
	}
	return nil
}

func resolveDirectiveLocations(d *schema.Directive) []string {
	locs := make([]string, len(d.Locations))
	for i, l := range d.Locations {
		locs[i] = string(l)
	}
	sort.Strings(locs)
	return locs
}

func resolveDirectiveArgs(d *schema.Directive, args map[string]any) []*schema.InputValue {
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*schema.InputValue{}
	for _, a := range d.Arguments {
		if !includeDeprecated && a.IsDeprecated {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveSchemaField(sch *schema.Schema, field string) (any, bool) {
	switch field {
	case "types":
		return resolveSchemaTypes(sch), true
	case "queryType":
		return sch.GetQueryType(), true
	case "mutationType":
		return sch.GetMutationType(), true
	case "subscriptionType":
		return sch.GetSubscriptionType(), true
	case "directives":
		return resolveSchemaDirectives(sch), true
	case "description":
		return sch.Description, true
	}
	return nil, false
}

func resolveTypeField(sch *schema.Schema, t *schema.Type, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return t.Description, true
	case "specifiedByURL":
		return t.SpecifiedByURL, true
	case "fields":
		return resolveTypeFields(t, args), true
	case "interfaces":
		return resolveTypeInterfaces(sch, t), true
	case "possibleTypes":
		return resolveTypePossibleTypes(sch, t), true
	case "enumValues":
		return resolveTypeEnumValues(t, args), true
	case "inputFields":
		return resolveTypeInputFields(t, args), true
	case "isOneOf":
		return t.OneOf, true
	case "ofType":
		// Wrapper types (LIST/NON_NULL) are represented as TypeRef nodes, so named types never expose ofType.
		return nil, true
	}
	return nil, false
}

func resolveTypeRefField(sch *schema.Schema, tr *schema.TypeRef, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		if tr.Kind == schema.TypeRefKindNamed {
			if def := sch.Types[tr.Named]; def != nil {
				return string(def.Kind), true
			}
		}
		return string(tr.Kind), true
	case "name":
		if tr.Kind != schema.TypeRefKindNamed {
			return nil, true
		}
		return tr.Named, true
	case "ofType":
		if tr.Kind == schema.TypeRefKindNonNull || tr.Kind == schema.TypeRefKindList {
			return tr.OfType, true
		}
		return nil, true
	default:
		if tr.Kind != schema.TypeRefKindNamed {
			return nil, true
		}
		if name := tr.Named; name != "" {
			if def := sch.Types[name]; def != nil {
				return resolveTypeField(sch, def, field, args)
			}
		}
		return nil, true
	}
}

func resolveFieldField(f *schema.Field, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return f.Description, true
	case "args":
		return resolveFieldArgs(f, args), true
	case "type":
		return f.Type, true
	case "isDeprecated":
		return f.IsDeprecated, true
	case "deprecationReason":
		return resolveFieldDeprecationReason(f), true
	}
	return nil, false
}

func resolveInputValueField(sch *schema.Schema, a *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return a.Name, true
	case "description":
		return a.Description, true
	case "type":
		return a.Type, true
	case "defaultValue":
		return resolveInputValueDefaultValue(sch, a), true
	case "isDeprecated":
		return a.IsDeprecated, true
	case "deprecationReason":
		return resolveInputValueDeprecationReason(a), true
	}
	return nil, false
}

func resolveEnumValueField(ev *schema.EnumValue, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return ev.Description, true
	case "isDeprecated":
		return ev.IsDeprecated, true
	case "deprecationReason":
		return resolveEnumValueDeprecationReason(ev), true
	}
	return nil, false
}

func resolveDirectiveField(d *schema.Directive, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return d.Description, true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		return resolveDirectiveLocations(d), true
	case "args":
		return resolveDirectiveArgs(d, args), true
	}
	return nil, false
}

func boolArg(args map[string]any, name string, def bool) bool {
	if args == nil {
		return def
	}
	if v, ok := args[name]; ok {
		if b, ok2 := v.(bool); ok2 {
			return b
		}
	}
	return def
}
