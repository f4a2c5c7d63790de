package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	language "github.com/hanpama/gqlplug/internal/language"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// coerceVariableValues coerces variable values according to their types
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	if variableValues == nil {
		variableValues = make(map[string]any)
	}
	coerced := make(map[string]any)
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := variableValues[name]
		if !ok {
			if v2, ok2 := variableValues[strings.TrimPrefix(name, "$")]; ok2 {
				val = v2
				ok = true
			}
		}
		if !ok {
			if varDef.DefaultValue != nil {
				val = astValueToGo(varDef.DefaultValue)
			} else if t.NonNull {
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t.String())
			} else {
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, t.String())
		}
		cv, err := coerceValue(sch, val, typeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces argument values for a field
func coerceArgumentValues(
	state *executionState,
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	path Path,
) map[string]any {
	coerced := make(map[string]any)
	for _, arg := range arguments {
		var argDef *schema.InputValue
		for _, a := range fieldDef.Arguments {
			if a.Name == arg.Name {
				argDef = a
				break
			}
		}
		if argDef == nil {
			continue
		}
		if arg.Value != nil && arg.Value.Kind == language.Variable {
			if _, ok := state.variableValues[arg.Value.Raw]; !ok {
				// unset variable: fall back to the argument default
				continue
			}
		}
		val := valueFromASTWithVars(arg.Value, state.variableValues)
		cv, err := coerceValue(state.schema, val, argDef.Type)
		if err != nil {
			state.addErrorf(path, "argument '%s' cannot be coerced: %v", arg.Name, err)
			continue
		}
		coerced[arg.Name] = cv
	}
	for _, argDef := range fieldDef.Arguments {
		name := argDef.Name
		if _, ok := coerced[name]; !ok {
			if argDef.DefaultValue != nil {
				coerced[name] = argDef.DefaultValue
			} else if schema.IsNonNull(argDef.Type) {
				state.addErrorf(path, "argument '%s' of required type was not provided", name)
			}
		}
	}
	return coerced
}

// valueFromASTWithVars converts an AST value to a runtime value with variable substitution
func valueFromASTWithVars(value *language.Value, variableValues map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		name := value.Raw
		if v, ok := variableValues[name]; ok {
			return v
		}
		if v, ok := variableValues[strings.TrimPrefix(name, "$")]; ok {
			return v
		}
		return nil
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromASTWithVars(c.Value, variableValues)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			m[f.Name] = valueFromASTWithVars(f.Value, variableValues)
		}
		return m
	default:
		return astValueToGo(value)
	}
}

// astValueToGo converts an AST value to a Go value
func astValueToGo(value *language.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.NullValue:
		return nil
	case language.EnumValue:
		return value.Raw
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = astValueToGo(c.Value)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any)
		for _, f := range value.Children {
			m[f.Name] = astValueToGo(f.Value)
		}
		return m
	default:
		return nil
	}
}

// coerceValue coerces a value to the specified GraphQL input type
func coerceValue(sch *schema.Schema, value any, targetType *schema.TypeRef) (any, error) {
	if schema.IsNonNull(targetType) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, schema.Unwrap(targetType))
	}

	if value == nil {
		return nil, nil
	}

	if schema.IsList(targetType) {
		return coerceListValue(sch, value, targetType)
	}

	namedType := schema.GetNamedType(targetType)
	switch namedType {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		return coerceToString(value)
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		return coerceToID(value)
	}

	var t *schema.Type
	if sch != nil {
		t = sch.Types[namedType]
	}
	if t == nil {
		// custom scalars without schema information pass through
		return value, nil
	}
	switch t.Kind {
	case schema.TypeKindEnum:
		return coerceToEnum(t, value)
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, t, value)
	default:
		return value, nil
	}
}

// coerceListValue coerces a value to a list
func coerceListValue(sch *schema.Schema, value any, listType *schema.TypeRef) (any, error) {
	innerType := schema.Unwrap(listType)
	if slice, ok := value.([]any); ok {
		coercedSlice := make([]any, len(slice))
		for i, item := range slice {
			coercedItem, err := coerceValue(sch, item, innerType)
			if err != nil {
				return nil, err
			}
			coercedSlice[i] = coercedItem
		}
		return coercedSlice, nil
	}

	// Single value becomes a list of one
	coercedItem, err := coerceValue(sch, value, innerType)
	if err != nil {
		return nil, err
	}
	return []any{coercedItem}, nil
}

func coerceInputObject(sch *schema.Schema, t *schema.Type, value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %v (%T) to input object %s", value, value, t.Name)
	}
	out := make(map[string]any, len(t.InputFields))
	for name := range m {
		if !slices.ContainsFunc(t.InputFields, func(f *schema.InputValue) bool { return f.Name == name }) {
			return nil, fmt.Errorf("unknown field '%s' for input object %s", name, t.Name)
		}
	}
	for _, f := range t.InputFields {
		v, present := m[f.Name]
		if !present {
			if f.DefaultValue != nil {
				out[f.Name] = f.DefaultValue
			} else if schema.IsNonNull(f.Type) {
				return nil, fmt.Errorf("required field '%s' of input object %s was not provided", f.Name, t.Name)
			}
			continue
		}
		cv, err := coerceValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %v", f.Name, err)
		}
		out[f.Name] = cv
	}
	if t.OneOf && len(out) != 1 {
		return nil, fmt.Errorf("exactly one field must be provided for input object %s", t.Name)
	}
	return out, nil
}

func coerceToEnum(t *schema.Type, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %v (%T) to enum %s", value, value, t.Name)
	}
	for _, v := range t.EnumValues {
		if v.Name == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("value %q does not exist in enum %s", s, t.Name)
}

func coerceToInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return checkInt32(int64(v), value)
	case int32:
		return int(v), nil
	case int64:
		return checkInt32(v, value)
	case float64:
		if v == math.Trunc(v) {
			return checkInt32(int64(v), value)
		}
	case float32:
		if float64(v) == math.Trunc(float64(v)) {
			return checkInt32(int64(v), value)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return checkInt32(n, value)
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
}

func checkInt32(n int64, orig any) (any, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("cannot coerce %v to int: out of 32-bit range", orig)
	}
	return int(n), nil
}

func coerceToFloat(value any) (any, error) {
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
		if f, err := v.Float64(); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceToString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case map[string]any, []any:
		return nil, fmt.Errorf("cannot coerce %T to string", value)
	}
	return fmt.Sprintf("%v", value), nil
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", value), nil
	}
}
