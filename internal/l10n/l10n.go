// Package l10n selects a locale per request and lets String fields declare
// that they return localized text.
//
// The locale comes from the operation's @locale(code:) directive, else the
// configured extractor, else the default. Resolvers read it with
// LocaleFromContext and return Localized values from @localized fields.
package l10n

import (
	"context"
	"fmt"
	"reflect"

	apierr "github.com/hanpama/gqlplug/internal/apierr"
	executor "github.com/hanpama/gqlplug/internal/executor"
	language "github.com/hanpama/gqlplug/internal/language"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

const Directives = `
directive @localized on FIELD_DEFINITION
directive @locale(code: String!) on QUERY | MUTATION
`

// LocalizedString is text tagged with the locale it is written in.
type LocalizedString struct {
	Str    string
	Locale string
}

func (s LocalizedString) String() string { return s.Str }

// Localized tags str with locale.
func Localized(str, locale string) LocalizedString {
	return LocalizedString{Str: str, Locale: locale}
}

// Options configures the localization plugin.
type Options struct {
	DefaultLocale string
	// Extract supplies the locale of requests without @locale. An empty
	// result falls back to DefaultLocale.
	Extract func(ctx context.Context) (string, error)
	// Verify fails @localized fields whose resolver returns untagged text.
	Verify bool
}

type Plugin struct {
	opts Options
}

func New(opts Options) *Plugin { return &Plugin{opts: opts} }

func (p *Plugin) Name() string { return "l10n" }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{
		Directives: []string{Directives},
		Transforms: []schema.Transform{p.transform},
		Wrapper:    p.wrap,
	}
}

func (p *Plugin) transform(s *schema.Schema) (*schema.Schema, error) {
	return schema.MapFields(s, func(t *schema.Type, f *schema.Field) (*schema.Field, error) {
		if !schema.HasDirective(f.Directives, "localized") {
			return f, nil
		}
		if named := schema.GetNamedType(f.Type); named != "String" {
			return nil, fmt.Errorf("localized fields must be strings, got %s", named)
		}
		next := schema.FieldResolver(f)
		name := f.Name
		f.Resolve = func(ctx context.Context, rp schema.ResolveParams) (any, error) {
			v, err := next(ctx, rp)
			if err != nil {
				return nil, err
			}
			return p.unwrap(name, v)
		}
		return f, nil
	})
}

// unwrap replaces LocalizedString values by their text, element-wise for
// lists.
func (p *Plugin) unwrap(field string, v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case LocalizedString:
		return s.Str, nil
	case *LocalizedString:
		if s == nil {
			return nil, nil
		}
		return s.Str, nil
	case string, *string:
		if p.opts.Verify {
			return nil, apierr.New(fmt.Sprintf("Field %q is not localized", field))
		}
		return v, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return v, nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		e, err := p.unwrap(field, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (p *Plugin) wrap(next plugin.Executable) plugin.Executable {
	return func(ctx context.Context, req *plugin.Request) (*executor.ExecutionResult, error) {
		locale, err := p.locale(ctx, req)
		if err != nil {
			return nil, err
		}
		return next(WithLocale(ctx, locale), req)
	}
}

func (p *Plugin) locale(ctx context.Context, req *plugin.Request) (string, error) {
	var code string
	if op := req.Operation(); op != nil {
		if d := op.Directives.ForName("locale"); d != nil {
			var err error
			if code, err = directiveCode(d, op, req.Variables); err != nil {
				return "", err
			}
		}
	}
	if code == "" && p.opts.Extract != nil {
		var err error
		if code, err = p.opts.Extract(ctx); err != nil {
			return "", fmt.Errorf("locale: %w", err)
		}
	}
	if code == "" {
		code = p.opts.DefaultLocale
	}
	return code, nil
}

// directiveCode evaluates the code argument, which may be a variable.
func directiveCode(d *language.Directive, op *language.OperationDefinition, vars map[string]any) (string, error) {
	arg := d.Arguments.ForName("code")
	if arg == nil || arg.Value == nil {
		return "", nil
	}
	v := arg.Value
	if v.Kind == language.Variable {
		if raw, ok := vars[v.Raw]; ok {
			s, ok := raw.(string)
			if !ok {
				return "", apierr.New(fmt.Sprintf("Variable \"$%s\" of @locale must be a string", v.Raw))
			}
			return s, nil
		}
		def := op.VariableDefinitions.ForName(v.Raw)
		if def == nil || def.DefaultValue == nil {
			return "", nil
		}
		v = def.DefaultValue
	}
	return v.Raw, nil
}

type localeKey struct{}

// WithLocale stores the request locale in ctx.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFromContext returns the locale selected for the request, "" when
// the plugin is not installed.
func LocaleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(localeKey{}).(string)
	return s
}
