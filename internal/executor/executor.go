package executor

import (
	"context"
	"fmt"
	"reflect"

	language "github.com/hanpama/gqlplug/internal/language"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

type (
	Path        = schema.Path
	PathElement = schema.PathElement
)

type NodeID uint64

// executionState holds the state during query execution
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	operation      *language.OperationDefinition
	variableValues map[string]any
	context        context.Context
	asyncTaskGroup []asyncTask
	errors         []GraphQLError
	// Store async tasks by ID for completion
	asyncTaskInfo map[NodeID]asyncTask
	nextID        uint64
	// keys of paths that have been nullified (tombstoned)
	nullifiedPrefix map[string]struct{}
}

// asyncTask represents a pending async field resolution
type asyncTask struct {
	ID           NodeID
	Task         AsyncResolveTask
	ResponsePath Path
	FieldType    *schema.TypeRef
	Fields       []*language.Field
}

type asyncPending struct{}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// Schema returns the schema the executor runs against.
func (e *Executor) Schema() *schema.Schema { return e.schema }

func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation := GetOperation(document, operationName)
	if operation == nil {
		if operationName != "" {
			return requestErrorf("unknown operation named %q", operationName)
		}
		return requestErrorf("operation not found")
	}

	coercedVariableValues, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return requestErrorf("%s", err)
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	case language.Subscription:
		rootType = e.schema.GetSubscriptionType()
	default:
		return requestErrorf("unsupported operation type: %s", operation.Operation)
	}
	if rootType == nil {
		return requestErrorf("root type not found for %s operation", operation.Operation)
	}

	state := &executionState{
		runtime:         e.runtime,
		schema:          e.schema,
		document:        document,
		operation:       operation,
		variableValues:  coercedVariableValues,
		context:         ctx,
		errors:          []GraphQLError{},
		asyncTaskInfo:   make(map[NodeID]asyncTask),
		nextID:          1,
		nullifiedPrefix: make(map[string]struct{}),
	}

	responseRoot := make(map[string]any)

	if operation.Operation == language.Mutation {
		// Root mutation fields run one after another, each to completion.
		for _, cf := range collectFields(state, rootType, operation.SelectionSet).orderedFields() {
			executeCollectedField(state, rootType, initialValue, cf, Path{}, responseRoot)
			state.drain(responseRoot)
		}
	} else {
		rootResult := executeSelectionSet(state, rootType, operation.SelectionSet, initialValue, Path{})
		for k, v := range rootResult {
			responseRoot[k] = v
		}
		state.drain(responseRoot)
	}

	return &ExecutionResult{Data: responseRoot, Errors: state.errors}
}

// drain runs the depth-wise batch loop until no async work is left.
func (s *executionState) drain(responseRoot map[string]any) {
	for len(s.asyncTaskGroup) > 0 {
		filtered, results := flushAsyncTasks(s)
		for i, r := range results {
			if i >= len(filtered) {
				break
			}
			completeAsyncField(s, filtered[i], r, responseRoot)
		}
		for i := len(results); i < len(filtered); i++ {
			completeAsyncField(s, filtered[i], AsyncResolveResult{Error: fmt.Errorf("runtime returned no result for %s", filtered[i].ResponsePath)}, responseRoot)
		}
	}
}

// executeSelectionSet executes a selection set without flushing
func executeSelectionSet(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	groupedFields := collectFields(state, objectType, selectionSet)
	resultMap := make(map[string]any)

	for _, cf := range groupedFields.orderedFields() {
		if !executeCollectedField(state, objectType, objectValue, cf, path, resultMap) {
			return nil
		}
	}
	return resultMap
}

// executeCollectedField writes one response entry into resultMap. It returns
// false when a non-null child below the root produced null, which nullifies
// the enclosing object.
func executeCollectedField(state *executionState, objectType *schema.Type, objectValue any, cf collectedField, path Path, resultMap map[string]any) bool {
	responseName := cf.ResponseName
	fields := cf.Fields
	fieldPath := appendPath(path, responseName)

	fieldResult := executeFieldGroup(state, objectType, objectValue, fields, fieldPath)

	if fields[0].Name == "__typename" {
		resultMap[responseName] = fieldResult
		return true
	}

	fieldDef := objectType.Field(fields[0].Name)
	if fieldDef == nil {
		// error already recorded in executeFieldGroup
		return true
	}

	if schema.IsNonNull(fieldDef.Type) && isNullish(fieldResult) {
		if len(path) > 0 {
			return false
		}
		// Root level: keep going but write nil
		resultMap[responseName] = nil
		return true
	}

	if isNullish(fieldResult) {
		resultMap[responseName] = nil
	} else {
		resultMap[responseName] = fieldResult
	}
	return true
}

func executeFieldGroup(state *executionState, objectType *schema.Type, objectValue any, fields []*language.Field, path Path) any {
	field := fields[0]
	fieldName := field.Name

	if fieldName == "__typename" {
		return objectType.Name
	}

	fieldDef := objectType.Field(fieldName)
	if fieldDef == nil {
		state.addErrorf(path, "Cannot query field '%s' on type '%s'", fieldName, objectType.Name)
		return nil
	}

	argumentValues := coerceArgumentValues(state, fieldDef, field.Arguments, path)
	info := &schema.ResolveInfo{
		FieldName:  fieldName,
		Field:      fieldDef,
		ParentType: objectType,
		ReturnType: fieldDef.Type,
		Path:       path,
		Schema:     state.schema,
		Operation:  state.operation,
		Variables:  state.variableValues,
	}

	if !fieldDef.Async {
		resolvedValue := resolveSyncField(state, schema.ResolveParams{Source: objectValue, Args: argumentValues, Info: info})
		return completeValue(state, fieldDef.Type, fields, resolvedValue, path)
	}

	id := NodeID(state.nextID)
	state.nextID++
	at := asyncTask{
		ID: id,
		Task: AsyncResolveTask{
			ObjectType: objectType.Name,
			Field:      fieldName,
			Source:     objectValue,
			Args:       argumentValues,
			Info:       info,
		},
		ResponsePath: path,
		FieldType:    fieldDef.Type,
		Fields:       fields,
	}
	state.asyncTaskGroup = append(state.asyncTaskGroup, at)
	state.asyncTaskInfo[id] = at
	return asyncPending{}
}

// flushAsyncTasks flushes tasks and returns results (filtered by tombstones)
func flushAsyncTasks(state *executionState) ([]asyncTask, []AsyncResolveResult) {
	filtered := make([]asyncTask, 0, len(state.asyncTaskGroup))
	for _, at := range state.asyncTaskGroup {
		if state.hasNullifiedPrefix(at.ResponsePath) {
			delete(state.asyncTaskInfo, at.ID)
			continue
		}
		filtered = append(filtered, at)
	}

	tasks := make([]AsyncResolveTask, len(filtered))
	for i, at := range filtered {
		tasks[i] = at.Task
	}

	state.asyncTaskGroup = nil
	if len(tasks) == 0 {
		return nil, nil
	}

	results := state.runtime.BatchResolveAsync(state.context, tasks)
	return filtered, results
}

// completeAsyncField completes a single async result, with non-null propagation and pruning
func completeAsyncField(state *executionState, at asyncTask, res AsyncResolveResult, responseRoot map[string]any) {
	delete(state.asyncTaskInfo, at.ID)

	path := at.ResponsePath
	if state.hasNullifiedPrefix(path) {
		return
	}

	if res.Error != nil {
		state.addError(res.Error, path)
		if schema.IsNonNull(at.FieldType) {
			top := topLevelFieldPath(path)
			setValueAtPath(responseRoot, top, nil)
			state.markNullifiedPrefix(top)
			return
		}
		setValueAtPath(responseRoot, path, nil)
		return
	}

	completed := completeValue(state, at.FieldType, at.Fields, res.Value, path)

	if schema.IsNonNull(at.FieldType) && isNullish(completed) {
		top := topLevelFieldPath(path)
		setValueAtPath(responseRoot, top, nil)
		state.markNullifiedPrefix(top)
		return
	}

	if isNullish(completed) {
		setValueAtPath(responseRoot, path, nil)
	} else {
		setValueAtPath(responseRoot, path, completed)
	}
}

func completeValue(state *executionState, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if _, pending := result.(asyncPending); pending {
		return result
	}
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addErrorf(path, "Cannot return null for non-nullable field %s", path)
			}
			return nil
		}
		completed := completeValue(state, schema.Unwrap(fieldType), fields, result, path)
		if isNullish(completed) {
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if schema.IsList(fieldType) {
		return completeListValue(state, fieldType, fields, result, path)
	}
	namedType := schema.GetNamedType(fieldType)
	typeObj := state.schema.Types[namedType]
	if typeObj == nil {
		state.addErrorf(path, "Unknown type: %s", namedType)
		return nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := state.runtime.SerializeLeafValue(state.context, namedType, result)
		if err != nil {
			state.addError(err, path)
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		return completeObjectValue(state, typeObj, fields, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, typeObj, fields, result, path)
	default:
		state.addErrorf(path, "Cannot complete value of unexpected type: %s", typeObj.Kind)
		return nil
	}
}

func completeListValue(state *executionState, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			state.addErrorf(path, "Expected list value, got %T", result)
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	for i, item := range items {
		p := appendPath(path, i)
		v := completeValue(state, inner, fields, item, p)
		if schema.IsNonNull(inner) && isNullish(v) {
			return nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, objectType *schema.Type, fields []*language.Field, result any, path Path) any {
	sub := mergeSelectionSets(fields)
	return executeSelectionSet(state, objectType, sub, result, path)
}

func completeAbstractValue(state *executionState, abstractType *schema.Type, fields []*language.Field, result any, path Path) any {
	typeName, err := state.runtime.ResolveType(state.context, abstractType.Name, result)
	if err != nil {
		state.addError(err, path)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addErrorf(path, "Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType.Name, typeName)
		return nil
	}
	if !isPossibleType(state.schema, abstractType, objectType) {
		state.addErrorf(path, "Runtime Object type %s is not a possible type for %s", typeName, abstractType.Name)
		return nil
	}
	return completeObjectValue(state, objectType, fields, result, path)
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

func (s *executionState) markNullifiedPrefix(p Path) {
	if len(p) > 0 {
		s.nullifiedPrefix[p.Key()] = struct{}{}
	}
}

func (s *executionState) hasNullifiedPrefix(p Path) bool {
	if len(s.nullifiedPrefix) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if _, ok := s.nullifiedPrefix[p[:i].Key()]; ok {
			return true
		}
	}
	return false
}

func topLevelFieldPath(p Path) Path {
	for _, elem := range p {
		if name, ok := elem.(string); ok {
			return Path{name}
		}
	}
	return Path{}
}

// GetOperation selects the operation by name, or the only operation when
// name is empty.
func GetOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if document == nil {
		return nil
	}
	if operationName == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op
		}
	}
	return nil
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return schema.NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}

func (s *executionState) addError(err error, path Path) {
	s.errors = append(s.errors, NewGraphQLError(err, path))
}

func (s *executionState) addErrorf(path Path, format string, args ...any) {
	s.errors = append(s.errors, GraphQLError{Message: fmt.Sprintf(format, args...), Path: path})
}

// hasErrorAtPath reports whether an error with the given path already exists.
func (s *executionState) hasErrorAtPath(path Path) bool {
	for _, err := range s.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

func resolveSyncField(state *executionState, p schema.ResolveParams) any {
	value, err := state.runtime.ResolveSync(state.context, p)
	if err != nil {
		state.addError(err, p.Info.Path)
		return nil
	}
	return value
}

// setValueAtPath writes value into the response tree at path.
func setValueAtPath(responseRoot map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	current := any(responseRoot)
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return
			}
			next, exists := m[e]
			if !exists {
				next = make(map[string]any)
				m[e] = next
			}
			current = next
		case int:
			slice, ok := current.([]any)
			if !ok || e >= len(slice) {
				return
			}
			if slice[e] == nil {
				slice[e] = make(map[string]any)
			}
			current = slice[e]
		}
	}
	switch fe := path[len(path)-1].(type) {
	case string:
		if m, ok := current.(map[string]any); ok {
			m[fe] = value
		}
	case int:
		if slice, ok := current.([]any); ok && fe < len(slice) {
			slice[fe] = value
		}
	}
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
