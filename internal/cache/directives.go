package cache

import (
	"time"

	language "github.com/hanpama/gqlplug/internal/language"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// Directives declares the cache directives and their enums.
const Directives = `
enum CacheScope { PUBLIC PRIVATE }
enum CacheTTL { SHORT MID LONG }
directive @cache(ttl: CacheTTL, scope: CacheScope) on FIELD_DEFINITION | OBJECT | INTERFACE
directive @noCache on QUERY
`

const (
	directiveCache   = "cache"
	directiveNoCache = "noCache"
)

// TTLs maps the CacheTTL names to durations.
type TTLs struct {
	Short time.Duration `yaml:"short"`
	Mid   time.Duration `yaml:"mid"`
	Long  time.Duration `yaml:"long"`
}

func DefaultTTLs() TTLs {
	return TTLs{Short: 30 * time.Second, Mid: 5 * time.Minute, Long: time.Hour}
}

// withDefaults fills zero members from DefaultTTLs.
func (t TTLs) withDefaults() TTLs {
	d := DefaultTTLs()
	if t.Short == 0 {
		t.Short = d.Short
	}
	if t.Mid == 0 {
		t.Mid = d.Mid
	}
	if t.Long == 0 {
		t.Long = d.Long
	}
	return t
}

func (t TTLs) duration(name string) time.Duration {
	switch name {
	case "SHORT":
		return t.Short
	case "MID":
		return t.Mid
	}
	return t.Long
}

// hintFromDirectives reads @cache from list. ok is false when the directive
// is absent.
func hintFromDirectives(list language.DirectiveList, ttls TTLs) (h Hint, ok bool, err error) {
	d := list.ForName(directiveCache)
	if d == nil {
		return Hint{}, false, nil
	}
	if err := schema.CheckArguments(d, "ttl", "scope"); err != nil {
		return Hint{}, false, err
	}
	ttl, hasTTL, err := schema.EnumArg(d, "ttl", "SHORT", "MID", "LONG")
	if err != nil {
		return Hint{}, false, err
	}
	scope, hasScope, err := schema.EnumArg(d, "scope", "PUBLIC", "PRIVATE")
	if err != nil {
		return Hint{}, false, err
	}
	if !hasTTL && !hasScope {
		return Hint{}, false, &schema.DirectiveError{Directive: directiveCache, Message: "requires ttl or scope"}
	}
	if hasTTL {
		h.TTL, h.HasTTL = ttls.duration(ttl), true
	}
	if hasScope {
		h.Scope, _ = ParseScope(scope)
	}
	return h, true, nil
}
