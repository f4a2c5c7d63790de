// Package executor runs validated GraphQL operations against a schema.
//
// Execution is breadth first. Fields marked schema.Field.Async are collected
// per depth and handed to Runtime.BatchResolveAsync in a single call, so an
// operation whose async fields nest d levels deep issues exactly d batches.
// Synchronous fields are resolved inline through Runtime.ResolveSync and do
// not add depth.
//
// Root mutation fields run one after another, each with its async
// descendants, before the next root field starts.
//
// Completion follows the usual GraphQL rules. A null or failed Non-Null
// field nulls its nearest nullable ancestor, and queued work below that
// ancestor is dropped. Abstract values are resolved with
// Runtime.ResolveType, leaves with Runtime.SerializeLeafValue.
//
// Errors are collected with their response path and never stop sibling
// fields. Errors raised by resolvers keep the original error in
// GraphQLError.Err so that callers can decide what reaches the client.
// Errors the executor raises itself (variable coercion, unknown
// operations, unresolvable types) carry no Err.
//
// ResolverRuntime is the Runtime used by the plugin pipeline: it runs the
// resolvers attached to the schema, after plugin transforms have wrapped
// them, and fans each async batch out on an errgroup.
package executor
