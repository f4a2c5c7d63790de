// Package cache implements a response cache plugin. Fields and types
// annotated with @cache contribute hints while a query executes; the
// aggregated policy decides whether and for whom the serialized response is
// stored.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	eventbus "github.com/hanpama/gqlplug/internal/eventbus"
	events "github.com/hanpama/gqlplug/internal/events"
	executor "github.com/hanpama/gqlplug/internal/executor"
	language "github.com/hanpama/gqlplug/internal/language"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// ErrNoSession is returned by the schema transform when PRIVATE scope is
// declared but no session extractor is configured.
var ErrNoSession = errors.New("PRIVATE cache scope requires a session extractor")

// Options configures the cache plugin.
type Options struct {
	// Store defaults to a MemoryStore.
	Store Store
	TTLs  TTLs
	// Session returns the caller's session ID; "" means anonymous.
	Session func(ctx context.Context) (string, error)
	// ExtraKeys returns additional data every key is derived from.
	ExtraKeys func(ctx context.Context) (map[string]any, error)
	Logger    *zap.Logger
}

// Plugin is the response cache.
type Plugin struct {
	store     Store
	ttls      TTLs
	session   func(ctx context.Context) (string, error)
	extraKeys func(ctx context.Context) (map[string]any, error)
	log       *zap.Logger
	lookups   singleflight.Group
}

func New(opts Options) *Plugin {
	p := &Plugin{
		store:     opts.Store,
		ttls:      opts.TTLs.withDefaults(),
		session:   opts.Session,
		extraKeys: opts.ExtraKeys,
		log:       opts.Logger,
	}
	if p.store == nil {
		p.store = NewMemoryStore()
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

func (p *Plugin) Name() string { return "cache" }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{
		Directives: []string{Directives},
		Transforms: []schema.Transform{p.transform},
		Wrapper:    p.wrap,
	}
}

func (p *Plugin) transform(s *schema.Schema) (*schema.Schema, error) {
	typeHints := make(map[string]Hint)
	for name, t := range s.Types {
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			continue
		}
		h, ok, err := hintFromDirectives(t.Directives, p.ttls)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		if !ok {
			continue
		}
		if h.Scope == ScopePrivate && p.session == nil {
			return nil, fmt.Errorf("type %s: %w", name, ErrNoSession)
		}
		typeHints[name] = h
	}

	return schema.MapFields(s, func(t *schema.Type, f *schema.Field) (*schema.Field, error) {
		fieldHint, annotated, err := hintFromDirectives(f.Directives, p.ttls)
		if err != nil {
			return nil, err
		}
		if fieldHint.Scope == ScopePrivate && p.session == nil {
			return nil, ErrNoSession
		}
		target := s.Types[schema.GetNamedType(f.Type)]
		composite := target != nil && (target.Kind == schema.TypeKindObject || target.Kind == schema.TypeKindInterface)
		if !annotated && !composite && !s.IsRootType(t.Name) {
			return f, nil
		}

		var hint Hint
		if composite {
			hint = typeHints[target.Name]
		}
		hint = hint.Overlay(fieldHint)

		next := schema.FieldResolver(f)
		f.Resolve = func(ctx context.Context, rp schema.ResolveParams) (any, error) {
			if hints := HintsFromContext(ctx); hints != nil {
				h := hint
				// untagged objects and root fields bust the cache
				if !h.HasTTL && (composite || rp.Info.IsRootField()) {
					h.HasTTL = true
				}
				if !h.IsZero() {
					hints.Record(rp.Info.Path, h)
				}
			}
			return next(ctx, rp)
		}
		return f, nil
	})
}

// request is the per-request key material, gathered once.
type request struct {
	base      KeyInput
	sessioned bool
}

func (p *Plugin) keyInput(ctx context.Context, req *plugin.Request) (request, error) {
	in := KeyInput{
		Source:        req.Query,
		Variables:     req.Variables,
		OperationName: req.OperationName,
	}
	if req.Document != nil {
		in.Source = language.FormatQuery(req.Document)
	}
	if p.extraKeys != nil {
		extra, err := p.extraKeys(ctx)
		if err != nil {
			return request{}, fmt.Errorf("cache extra keys: %w", err)
		}
		in.Extra = extra
	}
	if p.session != nil {
		id, err := p.session(ctx)
		if err != nil {
			return request{}, fmt.Errorf("cache session: %w", err)
		}
		in.SessionID = id
	}
	return request{base: in, sessioned: in.SessionID != ""}, nil
}

// lookupModes lists the session modes probed before execution, in order.
func (r request) lookupModes() []SessionMode {
	if r.sessioned {
		return []SessionMode{SessionPrivate, SessionPublic}
	}
	return []SessionMode{NoSession}
}

func (p *Plugin) wrap(next plugin.Executable) plugin.Executable {
	return func(ctx context.Context, req *plugin.Request) (*executor.ExecutionResult, error) {
		op := req.Operation()
		if op == nil || op.Operation != language.Query || schema.HasDirective(op.Directives, directiveNoCache) {
			return next(ctx, req)
		}
		r, err := p.keyInput(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, mode := range r.lookupModes() {
			res, ok, err := p.lookup(ctx, r.base.WithMode(mode))
			if err != nil {
				return nil, err
			}
			if ok {
				return res, nil
			}
		}

		hints := NewHints()
		res, err := next(withHints(ctx, hints), req)
		if err != nil || res == nil {
			return res, err
		}
		p.put(ctx, r, hints, res)
		return res, nil
	}
}

func (p *Plugin) lookup(ctx context.Context, in KeyInput) (*executor.ExecutionResult, bool, error) {
	key, err := Key(in)
	if err != nil {
		return nil, false, fmt.Errorf("cache key: %w", err)
	}
	start := time.Now()
	v, err, _ := p.lookups.Do(key, func() (any, error) {
		value, ok, err := p.store.Get(ctx, key)
		if err != nil || !ok {
			return nil, err
		}
		return value, nil
	})
	value, hit := v.(string)
	eventbus.Publish(ctx, events.CacheLookup{Mode: string(in.Mode), Hit: hit, Err: err, Duration: time.Since(start)})
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if !hit {
		return nil, false, nil
	}
	var res executor.ExecutionResult
	if err := codec.UnmarshalFromString(value, &res); err != nil {
		// treat an undecodable entry as a miss; the fresh result overwrites it
		p.log.Warn("discarding undecodable cache entry", zap.String("mode", string(in.Mode)), zap.Error(err))
		return nil, false, nil
	}
	return &res, true, nil
}

func (p *Plugin) put(ctx context.Context, r request, hints *Hints, res *executor.ExecutionResult) {
	if res.HasErrors() {
		eventbus.Publish(ctx, events.CacheSkip{Reason: "errors"})
		return
	}
	policy, ok := hints.Policy()
	if !ok {
		eventbus.Publish(ctx, events.CacheSkip{Reason: "uncacheable"})
		return
	}
	mode := NoSession
	switch {
	case policy.Scope == ScopePrivate && !r.sessioned:
		eventbus.Publish(ctx, events.CacheSkip{Reason: "private without session"})
		return
	case policy.Scope == ScopePrivate:
		mode = SessionPrivate
	case r.sessioned:
		mode = SessionPublic
	}

	err := p.write(ctx, r.base.WithMode(mode), res, policy.TTL)
	if err != nil {
		p.log.Warn("cache put failed", zap.String("mode", string(mode)), zap.Error(err))
	}
	eventbus.Publish(ctx, events.CacheStore{Mode: string(mode), Scope: policy.Scope.String(), TTL: policy.TTL, Err: err})
}

func (p *Plugin) write(ctx context.Context, in KeyInput, res *executor.ExecutionResult, ttl time.Duration) error {
	key, err := Key(in)
	if err != nil {
		return err
	}
	value, err := codec.MarshalToString(res)
	if err != nil {
		return err
	}
	return p.store.Put(ctx, key, value, ttl)
}
