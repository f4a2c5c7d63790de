package plugin

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	executor "github.com/hanpama/gqlplug/internal/executor"
	introspection "github.com/hanpama/gqlplug/internal/introspection"
	language "github.com/hanpama/gqlplug/internal/language"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// Config describes a server schema and the plugins applied to it.
type Config struct {
	// TypeDefs are SDL sources; plugin directive declarations are appended.
	TypeDefs      []string
	Resolvers     schema.Resolvers
	TypeResolvers schema.TypeResolvers
	Plugins       []Plugin

	DisableIntrospection bool
	// Concurrency bounds concurrently running async resolvers per batch.
	Concurrency int
	// Scalars serialize custom scalar values.
	Scalars map[string]executor.LeafSerializer
}

// Pipeline is a built schema with its composed execution chain.
type Pipeline struct {
	Schema     *schema.Schema
	Execute    Executable
	Middleware func(http.Handler) http.Handler
	Plugins    []Plugin
}

// Build constructs the schema, applies every plugin transform in order and
// folds the wrappers around the executor. Directive misuse and unknown
// resolver targets are reported here rather than at request time.
func Build(cfg Config) (*Pipeline, error) {
	if err := checkNames(cfg.Plugins); err != nil {
		return nil, err
	}
	sdl := slices.Clone(cfg.TypeDefs)
	for _, p := range cfg.Plugins {
		sdl = append(sdl, p.Capabilities().Directives...)
	}
	s, err := schema.BuildFromSDL(sdl...)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	if err := schema.Attach(s, cfg.Resolvers, cfg.TypeResolvers); err != nil {
		return nil, err
	}
	for _, p := range cfg.Plugins {
		s, err = schema.Apply(s, p.Capabilities().Transforms...)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
	}

	opts := []executor.RuntimeOption{executor.WithConcurrency(cfg.Concurrency)}
	for name, fn := range cfg.Scalars {
		opts = append(opts, executor.WithScalar(name, fn))
	}
	var rt executor.Runtime = executor.NewResolverRuntime(s, opts...)
	execSchema := s
	if !cfg.DisableIntrospection {
		w, err := introspection.Wrap(rt, s)
		if err != nil {
			return nil, err
		}
		rt, execSchema = w.Runtime, w.Schema
	}
	exec := executor.NewExecutor(rt, execSchema)

	base := func(ctx context.Context, req *Request) (*executor.ExecutionResult, error) {
		return exec.ExecuteRequest(ctx, req.Document, req.OperationName, req.Variables, req.RootValue), nil
	}
	return &Pipeline{
		Schema:     s,
		Execute:    Chain(base, cfg.Plugins...),
		Middleware: Middleware(cfg.Plugins...),
		Plugins:    cfg.Plugins,
	}, nil
}

func checkNames(plugins []Plugin) error {
	seen := make(map[string]bool, len(plugins))
	for i, p := range plugins {
		if p == nil {
			return fmt.Errorf("plugin %d is nil", i)
		}
		name := p.Name()
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("plugin %d has no name", i)
		}
		if seen[name] {
			return fmt.Errorf("plugin %s registered twice", name)
		}
		seen[name] = true
	}
	return nil
}

// Parse parses and validates query against the schema. Syntax and
// validation errors are returned as a result instead of a document.
func (p *Pipeline) Parse(query string) (*language.QueryDocument, *executor.ExecutionResult) {
	doc, errs := language.ParseAndValidateQuery(p.Schema.AST, query)
	if len(errs) == 0 {
		return doc, nil
	}
	res := &executor.ExecutionResult{}
	for _, e := range errs {
		res.Errors = append(res.Errors, executor.GraphQLError{
			Message:    e.Message,
			Extensions: validationExtensions(e),
		})
	}
	return nil, res
}

// Do parses and validates query and runs it through the chain. Syntax and
// validation errors are returned inside the result.
func (p *Pipeline) Do(ctx context.Context, query, operationName string, variables map[string]any) (*executor.ExecutionResult, error) {
	doc, res := p.Parse(query)
	if res != nil {
		return res, nil
	}
	return p.Execute(ctx, &Request{
		Query:         query,
		Document:      doc,
		OperationName: operationName,
		Variables:     variables,
	})
}

func validationExtensions(e *language.Error) map[string]any {
	ext := map[string]any{"code": "GRAPHQL_VALIDATION_FAILED"}
	if e.Rule == "" {
		ext["code"] = "GRAPHQL_PARSE_FAILED"
	}
	if len(e.Locations) > 0 {
		locs := make([]map[string]int, len(e.Locations))
		for i, l := range e.Locations {
			locs[i] = map[string]int{"line": l.Line, "column": l.Column}
		}
		ext["locations"] = locs
	}
	return ext
}
