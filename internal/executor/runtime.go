package executor

import (
	"context"

	schema "github.com/hanpama/gqlplug/internal/schema"
)

// Runtime defines the host integration surface for field resolution, batching,
// abstract type resolution, and leaf-value serialization used by the Executor.
//
// General contract
//   - The Executor performs a breadth-first execution. At each depth it drains all
//     synchronous fields first via ResolveSync, then calls BatchResolveAsync ONCE
//     with all async tasks collected at that depth. The next depth does not begin
//     until BatchResolveAsync returns and those results are completed.
//   - ResolveSync is never invoked for fields marked async, and
//     BatchResolveAsync is only invoked when there is at least one async field
//     at the current depth.
//   - Errors returned from any method are converted into located GraphQL errors.
//     If the field's return type is Non-Null, the Executor propagates the null
//     up to the nearest nullable ancestor.
//   - Implementations must be safe for concurrent use across operations and
//     must not mutate source or args values.
//
// Every resolution receives a schema.ResolveInfo describing the field: parent
// type, field definition, response path, operation and coerced variables.
//
// Partial success and determinism
//   - BatchResolveAsync must return one AsyncResolveResult per task, in task
//     order. Failures in one element do not affect the others.
type Runtime interface {
	// ResolveSync resolves a synchronous field value immediately. The raw
	// value is completed by the Executor (including nested selection sets).
	// Return (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, p schema.ResolveParams) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	//
	// Requirements:
	// - Return len(results) == len(tasks).
	// - results[i] corresponds to tasks[i].
	// - Return independent errors per element without failing the whole batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType determines the concrete object type name for a value of an
	// abstract type (interface or union).
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value. Enums serialize to their symbolic name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
	// Info describes the field occurrence being resolved.
	Info *schema.ResolveInfo
}

// Params returns the resolver parameters for the task.
func (t AsyncResolveTask) Params() schema.ResolveParams {
	return schema.ResolveParams{Source: t.Source, Args: t.Args, Info: t.Info}
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}
