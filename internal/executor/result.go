package executor

import (
	"errors"
	"fmt"
)

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	// Err is the underlying error, if any. It never reaches the wire.
	Err error `json:"-"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

func (e GraphQLError) Unwrap() error { return e.Err }

// extender is implemented by errors that carry response extensions.
type extender interface {
	Extensions() map[string]any
}

// NewGraphQLError converts err into a located GraphQL error. Extensions are
// taken from the first error in the chain that provides them.
func NewGraphQLError(err error, path Path) GraphQLError {
	var gqlErr GraphQLError
	if errors.As(err, &gqlErr) {
		if gqlErr.Path == nil {
			gqlErr.Path = path
		}
		return gqlErr
	}
	out := GraphQLError{Message: err.Error(), Path: path, Err: err}
	var ext extender
	if errors.As(err, &ext) {
		out.Extensions = ext.Extensions()
	}
	return out
}

// ExecutionResult represents the result of executing a GraphQL query
type ExecutionResult struct {
	Data       any            `json:"data"`
	Errors     []GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// ErrorResult builds a result with no data from errs.
func ErrorResult(errs ...error) *ExecutionResult {
	out := &ExecutionResult{}
	for _, err := range errs {
		out.Errors = append(out.Errors, NewGraphQLError(err, nil))
	}
	return out
}

// requestErrorf builds a result for an operation that could not start. The
// error originates in the executor, so it carries no underlying Err.
func requestErrorf(format string, args ...any) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf(format, args...)}}}
}

// HasErrors reports whether the result carries any error.
func (r *ExecutionResult) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// SetExtension sets a top-level response extension.
func (r *ExecutionResult) SetExtension(key string, value any) {
	if r.Extensions == nil {
		r.Extensions = make(map[string]any)
	}
	r.Extensions[key] = value
}
