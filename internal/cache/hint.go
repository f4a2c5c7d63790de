package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	schema "github.com/hanpama/gqlplug/internal/schema"
)

// Scope says who may share a cached response.
type Scope int

const (
	ScopeUnset Scope = iota
	ScopePublic
	ScopePrivate
)

func (s Scope) String() string {
	switch s {
	case ScopePublic:
		return "PUBLIC"
	case ScopePrivate:
		return "PRIVATE"
	}
	return ""
}

// ParseScope parses a CacheScope enum value.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "PUBLIC":
		return ScopePublic, nil
	case "PRIVATE":
		return ScopePrivate, nil
	}
	return ScopeUnset, fmt.Errorf("unknown cache scope %q", s)
}

// Hint is the partial cache policy of one field occurrence. Attributes that
// were never declared stay unset.
type Hint struct {
	TTL    time.Duration
	HasTTL bool
	Scope  Scope
}

// IsZero reports whether h declares nothing.
func (h Hint) IsZero() bool { return !h.HasTTL && h.Scope == ScopeUnset }

// Overlay returns h with every attribute explicitly set on o replacing its
// own. Unset attributes of o keep the value from h.
func (h Hint) Overlay(o Hint) Hint {
	if o.HasTTL {
		h.TTL, h.HasTTL = o.TTL, true
	}
	if o.Scope != ScopeUnset {
		h.Scope = o.Scope
	}
	return h
}

// Policy is the cache policy of a whole response.
type Policy struct {
	TTL   time.Duration
	Scope Scope
}

// ComputePolicy aggregates hints: the lowest ttl wins and any PRIVATE hint
// makes the response PRIVATE. ok is false when the response must not be
// cached, i.e. no hint carries a ttl or the lowest one is zero.
func ComputePolicy(hints []Hint) (p Policy, ok bool) {
	p.Scope = ScopePublic
	var seen bool
	for _, h := range hints {
		if h.HasTTL && (!seen || h.TTL < p.TTL) {
			p.TTL, seen = h.TTL, true
		}
		if h.Scope == ScopePrivate {
			p.Scope = ScopePrivate
		}
	}
	if !seen || p.TTL <= 0 {
		return Policy{}, false
	}
	return p, true
}

// Hints collects the hints of one request, one per response path. It is
// safe for concurrent use by sibling resolvers.
type Hints struct {
	m *xsync.MapOf[string, Hint]
}

func NewHints() *Hints {
	return &Hints{m: xsync.NewMapOf[string, Hint]()}
}

// Record stores hint for path. A second hint for the same path is merged
// over the first.
func (h *Hints) Record(path schema.Path, hint Hint) {
	h.m.Compute(path.Key(), func(old Hint, loaded bool) (Hint, bool) {
		if loaded {
			return old.Overlay(hint), false
		}
		return hint, false
	})
}

// Get returns the hint recorded for path.
func (h *Hints) Get(path schema.Path) (Hint, bool) {
	return h.m.Load(path.Key())
}

// Len returns the number of recorded paths.
func (h *Hints) Len() int { return h.m.Size() }

// Policy aggregates the recorded hints with ComputePolicy.
func (h *Hints) Policy() (Policy, bool) {
	all := make([]Hint, 0, h.m.Size())
	h.m.Range(func(_ string, v Hint) bool {
		all = append(all, v)
		return true
	})
	return ComputePolicy(all)
}

type hintsKey struct{}

func withHints(ctx context.Context, h *Hints) context.Context {
	return context.WithValue(ctx, hintsKey{}, h)
}

// HintsFromContext returns the hint set of the current request, or nil when
// the request is not being cached.
func HintsFromContext(ctx context.Context) *Hints {
	h, _ := ctx.Value(hintsKey{}).(*Hints)
	return h
}
