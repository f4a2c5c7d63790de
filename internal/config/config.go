// Package config loads the gqlplug YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	auth "github.com/hanpama/gqlplug/internal/auth"
	cache "github.com/hanpama/gqlplug/internal/cache"
	otel "github.com/hanpama/gqlplug/internal/otel"
)

const (
	BackendMemory  = "memory"
	BackendSturdyc = "sturdyc"
	BackendRedis   = "redis"
)

// Validation errors are keyed by the YAML names.
func init() { validation.ErrorTag = "yaml" }

type Config struct {
	Server  Server      `yaml:"server"`
	GraphQL GraphQL     `yaml:"graphql"`
	Cache   Cache       `yaml:"cache"`
	Auth    Auth        `yaml:"auth"`
	L10n    L10n        `yaml:"l10n"`
	Trace   Trace       `yaml:"trace"`
	Log     Log         `yaml:"log"`
	OTel    otel.Config `yaml:"otel"`
	Metrics Metrics     `yaml:"metrics"`
}

type Server struct {
	Addr         string        `yaml:"addr"`
	Path         string        `yaml:"path"`
	Timeout      time.Duration `yaml:"timeout"`
	Pretty       bool          `yaml:"pretty"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	CORSOrigins  []string      `yaml:"corsOrigins"`
	// MetadataHeaders are HTTP headers exposed to plugins as metadata.
	MetadataHeaders []string `yaml:"metadataHeaders"`
	Playground      bool     `yaml:"playground"`
	MaskErrors      bool     `yaml:"maskErrors"`
}

type GraphQL struct {
	// Schema lists SDL files composed into the served schema.
	Schema        []string `yaml:"schema"`
	Introspection bool     `yaml:"introspection"`
	Concurrency   int      `yaml:"concurrency"`
}

type Cache struct {
	Enabled bool                `yaml:"enabled"`
	Backend string              `yaml:"backend"`
	TTLs    cache.TTLs          `yaml:"ttl"`
	Sturdyc cache.SturdycConfig `yaml:"sturdyc"`
	Redis   Redis               `yaml:"redis"`
	// ExtraKeyHeaders are metadata headers whose values partition entries.
	ExtraKeyHeaders []string `yaml:"extraKeyHeaders"`
}

type Redis struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
}

type Auth struct {
	Enabled      bool                  `yaml:"enabled"`
	DefaultLevel auth.Level            `yaml:"defaultLevel"`
	Roles        map[string]auth.Level `yaml:"roles"`
	JWT          JWT                   `yaml:"jwt"`
}

type JWT struct {
	Secret     string `yaml:"secret"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
	Header     string `yaml:"header"`
	LevelClaim string `yaml:"levelClaim"`
	RoleClaim  string `yaml:"roleClaim"`
}

type L10n struct {
	Enabled       bool   `yaml:"enabled"`
	DefaultLocale string `yaml:"defaultLocale"`
	// Header names the metadata header consulted for requests without
	// @locale. It must also be listed in server.metadataHeaders.
	Header string `yaml:"header"`
	Verify bool   `yaml:"verify"`
}

type Trace struct {
	Enabled bool `yaml:"enabled"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:       ":8080",
			Path:       "/graphql",
			Timeout:    10 * time.Second,
			Playground: true,
			MaskErrors: true,
		},
		GraphQL: GraphQL{Introspection: true},
		Cache: Cache{
			Enabled: true,
			Backend: BackendMemory,
			TTLs:    cache.DefaultTTLs(),
			Sturdyc: cache.DefaultSturdycConfig(),
			Redis:   Redis{Addrs: []string{"localhost:6379"}, Prefix: "gqlplug:"},
		},
		Auth: Auth{
			Enabled: true,
			JWT:     JWT{Header: "authorization", LevelClaim: "level", RoleClaim: "role"},
		},
		L10n:    L10n{Enabled: true, DefaultLocale: "en", Header: "accept-language"},
		Trace:   Trace{Enabled: true},
		Log:     Log{Level: "info"},
		OTel:    otel.Config{Service: "gqlplug"},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
	}
}

// Load reads the file at path over the defaults. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.GraphQL),
		validation.Field(&c.Cache),
		validation.Field(&c.Auth),
		validation.Field(&c.L10n),
		validation.Field(&c.Log),
		validation.Field(&c.Metrics),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.Path, validation.Required),
		validation.Field(&s.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&s.MaxBodyBytes, validation.Min(int64(0))),
	)
}

func (g GraphQL) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Concurrency, validation.Min(0)),
	)
}

func (c Cache) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendSturdyc, BackendRedis)),
		validation.Field(&c.TTLs, validation.By(validTTLs)),
		validation.Field(&c.Sturdyc, validation.When(c.Backend == BackendSturdyc, validation.By(validSturdyc))),
		validation.Field(&c.Redis, validation.When(c.Backend == BackendRedis, validation.By(validRedis))),
	)
}

func validTTLs(v any) error {
	t := v.(cache.TTLs)
	return validation.Errors{
		"short": positive(t.Short),
		"mid":   positive(t.Mid),
		"long":  positive(t.Long),
	}.Filter()
}

func validSturdyc(v any) error {
	c := v.(cache.SturdycConfig)
	return validation.Errors{
		"capacity":           validation.Validate(c.Capacity, validation.Min(1)),
		"shards":             validation.Validate(c.NumShards, validation.Min(1)),
		"maxTTL":             positive(c.MaxTTL),
		"evictionPercentage": validation.Validate(c.EvictionPercentage, validation.Min(1), validation.Max(100)),
	}.Filter()
}

func positive(d time.Duration) error {
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func validRedis(v any) error {
	r := v.(Redis)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addrs, validation.Required),
		validation.Field(&r.DB, validation.Min(0)),
	)
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.DefaultLevel, validation.By(validLevel)),
		validation.Field(&a.Roles, validation.Each(validation.By(validLevel))),
		validation.Field(&a.JWT),
	)
}

func validLevel(v any) error {
	l, ok := v.(auth.Level)
	if !ok || !l.Valid() {
		return fmt.Errorf("must be one of %v", auth.LevelNames())
	}
	return nil
}

func (j JWT) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.Header, validation.Required.When(j.Secret != "")),
		validation.Field(&j.Secret, validation.Length(16, 0)),
	)
}

func (l L10n) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.DefaultLocale, validation.Required.When(l.Enabled)),
	)
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.By(func(v any) error {
			_, err := zapcore.ParseLevel(v.(string))
			return err
		})),
	)
}

func (m Metrics) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Path, validation.Required.When(m.Enabled)),
	)
}

// Logger builds the process logger described by l.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
