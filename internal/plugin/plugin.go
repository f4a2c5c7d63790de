// Package plugin composes cross-cutting concerns around a GraphQL schema and
// its execution.
//
// A plugin contributes any subset of four capabilities: directive
// declarations (SDL), schema transforms, an execution wrapper and an HTTP
// middleware. Plugins are ordered. Transforms are applied in plugin order,
// and wrappers and middlewares are nested so that the first plugin is the
// outermost one.
package plugin

import (
	"context"
	"net/http"

	executor "github.com/hanpama/gqlplug/internal/executor"
	language "github.com/hanpama/gqlplug/internal/language"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// Plugin is one cross-cutting concern.
type Plugin interface {
	Name() string
	Capabilities() Capabilities
}

// Capabilities lists what a plugin contributes. Zero members are absent
// capabilities.
type Capabilities struct {
	// Directives are SDL fragments declaring the plugin's directives and
	// the enums they use.
	Directives []string
	Transforms []schema.Transform
	Wrapper    Wrapper
	Middleware func(http.Handler) http.Handler
}

// Request is one GraphQL operation request as seen by wrappers.
type Request struct {
	Query         string
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	RootValue     any
}

// Operation returns the operation the request selects, or nil.
func (r *Request) Operation() *language.OperationDefinition {
	return executor.GetOperation(r.Document, r.OperationName)
}

// Executable runs a request. A returned error is an execution failure, as
// opposed to field errors which travel inside the result.
type Executable func(ctx context.Context, req *Request) (*executor.ExecutionResult, error)

// Wrapper intercepts execution. It may change ctx before calling next,
// return without calling next, or post-process the result. Errors returned
// by next must be propagated.
type Wrapper func(next Executable) Executable

// Chain folds the wrappers of plugins around base. The first plugin's wrapper
// runs first on the way in and last on the way out.
func Chain(base Executable, plugins ...Plugin) Executable {
	exec := base
	for i := len(plugins) - 1; i >= 0; i-- {
		if w := plugins[i].Capabilities().Wrapper; w != nil {
			exec = w(exec)
		}
	}
	return exec
}

// Middleware nests the plugins' HTTP middlewares, first plugin outermost.
func Middleware(plugins ...Plugin) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(plugins) - 1; i >= 0; i-- {
			if mw := plugins[i].Capabilities().Middleware; mw != nil {
				h = mw(h)
			}
		}
		return h
	}
}

type funcPlugin struct {
	name string
	caps Capabilities
}

func (p funcPlugin) Name() string               { return p.name }
func (p funcPlugin) Capabilities() Capabilities { return p.caps }

// New returns a plugin with fixed capabilities.
func New(name string, caps Capabilities) Plugin {
	return funcPlugin{name: name, caps: caps}
}
