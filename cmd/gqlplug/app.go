package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	auth "github.com/hanpama/gqlplug/internal/auth"
	cache "github.com/hanpama/gqlplug/internal/cache"
	config "github.com/hanpama/gqlplug/internal/config"
	l10n "github.com/hanpama/gqlplug/internal/l10n"
	logger "github.com/hanpama/gqlplug/internal/logger"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	schema "github.com/hanpama/gqlplug/internal/schema"
	trace "github.com/hanpama/gqlplug/internal/trace"
)

// project is the schema source served or printed by a command.
type project struct {
	typeDefs  []string
	resolvers schema.Resolvers
	demo      bool
}

func loadProject(files []string, demo bool) (project, error) {
	var p project
	if demo {
		p = project{typeDefs: []string{demoTypeDefs}, resolvers: demoResolvers(), demo: true}
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return project{}, fmt.Errorf("read schema: %w", err)
		}
		p.typeDefs = append(p.typeDefs, string(b))
	}
	if len(p.typeDefs) == 0 {
		return project{}, fmt.Errorf("no schema: pass -demo or -graphql.schema")
	}
	return p, nil
}

// closer releases resources held by the assembled pipeline.
type closer func() error

// buildPipeline assembles the plugins enabled in cfg in their fixed order:
// trace, cache, auth, l10n, logger. The first plugin is the outermost.
func buildPipeline(cfg config.Config, proj project, log *zap.Logger) (*plugin.Pipeline, closer, error) {
	var plugins []plugin.Plugin
	release := func() error { return nil }

	var jwt *auth.JWT
	if cfg.Auth.JWT.Secret != "" {
		jwt = auth.NewJWT(auth.JWTConfig{
			Secret:     []byte(cfg.Auth.JWT.Secret),
			Issuer:     cfg.Auth.JWT.Issuer,
			Audience:   cfg.Auth.JWT.Audience,
			Header:     cfg.Auth.JWT.Header,
			LevelClaim: cfg.Auth.JWT.LevelClaim,
			RoleClaim:  cfg.Auth.JWT.RoleClaim,
			Roles:      cfg.Auth.Roles,
		})
	}

	var level auth.Extractor
	if cfg.Auth.Enabled {
		switch {
		case jwt != nil:
			level = jwt.Level
		case proj.demo:
			level = func(context.Context) (auth.Level, error) { return auth.Admin, nil }
		}
	}
	var locale func(context.Context) (string, error)
	if cfg.L10n.Enabled {
		locale = headerLocale(cfg.L10n.Header)
	}

	if cfg.Trace.Enabled {
		plugins = append(plugins, trace.New())
	}
	if cfg.Cache.Enabled {
		store, closeStore, err := buildStore(cfg.Cache)
		if err != nil {
			return nil, nil, err
		}
		release = closeStore
		opts := cache.Options{
			Store:     store,
			TTLs:      cfg.Cache.TTLs,
			ExtraKeys: cacheKeys(cfg.Cache.ExtraKeyHeaders, level, locale),
			Logger:    log,
		}
		if jwt != nil {
			opts.Session = jwt.Subject
		}
		plugins = append(plugins, cache.New(opts))
	}
	if cfg.Auth.Enabled {
		plugins = append(plugins, auth.New(auth.Options{
			DefaultLevel: cfg.Auth.DefaultLevel,
			Roles:        cfg.Auth.Roles,
			Extract:      level,
		}))
	}
	if cfg.L10n.Enabled {
		plugins = append(plugins, l10n.New(l10n.Options{
			DefaultLocale: cfg.L10n.DefaultLocale,
			Extract:       locale,
			Verify:        cfg.L10n.Verify || proj.demo,
		}))
	}
	plugins = append(plugins, logger.New(log))

	p, err := plugin.Build(plugin.Config{
		TypeDefs:             proj.typeDefs,
		Resolvers:            proj.resolvers,
		Plugins:              plugins,
		DisableIntrospection: !cfg.GraphQL.Introspection,
		Concurrency:          cfg.GraphQL.Concurrency,
	})
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	return p, release, nil
}

func buildStore(cfg config.Cache) (cache.Store, closer, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendMemory:
		return cache.NewMemoryStore(), noop, nil
	case config.BackendSturdyc:
		return cache.NewSturdycStore(cfg.Sturdyc), noop, nil
	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedisStore(client, cfg.Redis.Prefix), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// cacheKeys partitions cache entries by the values of the given incoming
// metadata headers and by the requester level and locale that the inner
// auth and l10n plugins will resolve. The cache runs outside those plugins,
// so anything they vary the result on must be part of the key.
func cacheKeys(headers []string, level auth.Extractor, locale func(context.Context) (string, error)) func(context.Context) (map[string]any, error) {
	if len(headers) == 0 && level == nil && locale == nil {
		return nil
	}
	return func(ctx context.Context) (map[string]any, error) {
		keys := make(map[string]any, len(headers)+2)
		if len(headers) > 0 {
			md, _ := metadata.FromIncomingContext(ctx)
			for _, h := range headers {
				keys["header:"+strings.ToLower(h)] = md.Get(h)
			}
		}
		if level != nil {
			l, err := level(ctx)
			if err != nil {
				return nil, fmt.Errorf("authorization level: %w", err)
			}
			keys["level"] = l.String()
		}
		if locale != nil {
			code, err := locale(ctx)
			if err != nil {
				return nil, fmt.Errorf("locale: %w", err)
			}
			keys["locale"] = code
		}
		return keys, nil
	}
}

// headerLocale reads the first language tag of an Accept-Language style
// metadata header.
func headerLocale(header string) func(context.Context) (string, error) {
	if header == "" {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		vals := md.Get(header)
		if len(vals) == 0 {
			return "", nil
		}
		tag, _, _ := strings.Cut(vals[0], ",")
		tag, _, _ = strings.Cut(tag, ";")
		return strings.TrimSpace(tag), nil
	}
}
