// Package auth enforces per-field authorization levels declared with the
// @a11n directive (alias @authorization).
package auth

import (
	"context"
	"fmt"
	"strings"

	apierr "github.com/hanpama/gqlplug/internal/apierr"
	executor "github.com/hanpama/gqlplug/internal/executor"
	language "github.com/hanpama/gqlplug/internal/language"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// ErrNoAccess fails a field the requester may not see.
var ErrNoAccess = apierr.New("No access")

var directiveNames = []string{"a11n", "authorization"}

// Directives returns the SDL declaring the authorization directives.
func Directives() string {
	var b strings.Builder
	b.WriteString("enum AuthorizationLevel { ")
	b.WriteString(strings.Join(LevelNames(), " "))
	b.WriteString(" }\n")
	for _, name := range directiveNames {
		fmt.Fprintf(&b, "directive @%s(level: AuthorizationLevel, role: String) on FIELD_DEFINITION | OBJECT\n", name)
	}
	return b.String()
}

// Extractor returns the requester's level.
type Extractor func(ctx context.Context) (Level, error)

// Options configures the authorization plugin.
type Options struct {
	// DefaultLevel applies to fields whose field and type carry no
	// directive. The zero value is Public.
	DefaultLevel Level
	// Roles maps names usable as @a11n(role:) to levels.
	Roles map[string]Level
	// Extract is called once per request. Nil means every requester is
	// Public.
	Extract Extractor
}

// Plugin is the authorization plugin.
type Plugin struct {
	opts Options
}

func New(opts Options) *Plugin { return &Plugin{opts: opts} }

func (p *Plugin) Name() string { return "auth" }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{
		Directives: []string{Directives()},
		Transforms: []schema.Transform{p.transform},
		Wrapper:    p.wrap,
	}
}

func (p *Plugin) transform(s *schema.Schema) (*schema.Schema, error) {
	if !p.opts.DefaultLevel.Valid() {
		return nil, fmt.Errorf("invalid default level %d", int(p.opts.DefaultLevel))
	}
	for role, l := range p.opts.Roles {
		if !l.Valid() {
			return nil, fmt.Errorf("invalid level %d for role %q", int(l), role)
		}
	}
	typeLevels := make(map[string]Level)
	for name, t := range s.Types {
		if t.Kind != schema.TypeKindObject {
			continue
		}
		l, ok, err := p.levelFrom(t.Directives)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		if ok {
			typeLevels[name] = l
		}
	}
	return schema.MapFields(s, func(t *schema.Type, f *schema.Field) (*schema.Field, error) {
		required, ok, err := p.levelFrom(f.Directives)
		if err != nil {
			return nil, err
		}
		if !ok {
			if required, ok = typeLevels[t.Name]; !ok {
				required = p.opts.DefaultLevel
			}
		}
		if t.Kind != schema.TypeKindObject || required == Public {
			return f, nil
		}
		next := schema.FieldResolver(f)
		f.Resolve = func(ctx context.Context, rp schema.ResolveParams) (any, error) {
			if !LevelFromContext(ctx).Satisfies(required) {
				return nil, ErrNoAccess
			}
			return next(ctx, rp)
		}
		return f, nil
	})
}

// levelFrom resolves the level required by an @a11n or @authorization use
// in list. ok is false when neither is present.
func (p *Plugin) levelFrom(list language.DirectiveList) (l Level, ok bool, err error) {
	d, err := schema.FindDirective(list, directiveNames...)
	if err != nil || d == nil {
		return Public, false, err
	}
	if err := schema.CheckArguments(d, "level", "role"); err != nil {
		return Public, false, err
	}
	level, hasLevel, err := schema.EnumArg(d, "level", LevelNames()...)
	if err != nil {
		return Public, false, err
	}
	role, hasRole, err := schema.StringArg(d, "role")
	if err != nil {
		return Public, false, err
	}
	switch {
	case hasLevel && hasRole:
		return Public, false, &schema.DirectiveError{Directive: d.Name, Message: "expected either level or role, not both"}
	case hasLevel:
		l, err = ParseLevel(level)
		return l, err == nil, err
	case hasRole:
		l, ok := p.opts.Roles[role]
		if !ok {
			return Public, false, &schema.DirectiveError{Directive: d.Name, Argument: "role", Message: fmt.Sprintf("unknown role %q", role)}
		}
		return l, true, nil
	}
	return Public, false, &schema.DirectiveError{Directive: d.Name, Message: "expected a level or role argument"}
}

func (p *Plugin) wrap(next plugin.Executable) plugin.Executable {
	return func(ctx context.Context, req *plugin.Request) (*executor.ExecutionResult, error) {
		level := Public
		if p.opts.Extract != nil {
			var err error
			if level, err = p.opts.Extract(ctx); err != nil {
				return nil, fmt.Errorf("authorization level: %w", err)
			}
		}
		return next(WithLevel(ctx, level), req)
	}
}

type levelKey struct{}

// WithLevel stores the requester level in ctx.
func WithLevel(ctx context.Context, l Level) context.Context {
	return context.WithValue(ctx, levelKey{}, l)
}

// LevelFromContext returns the requester level, Public when unset.
func LevelFromContext(ctx context.Context) Level {
	if l, ok := ctx.Value(levelKey{}).(Level); ok {
		return l
	}
	return Public
}
