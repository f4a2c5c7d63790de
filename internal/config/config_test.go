package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	auth "github.com/hanpama/gqlplug/internal/auth"
	cache "github.com/hanpama/gqlplug/internal/cache"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, cache.DefaultTTLs(), cfg.Cache.TTLs)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, auth.Public, cfg.Auth.DefaultLevel)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  addr: ":9000"
  timeout: 3s
  metadataHeaders: [Authorization, Accept-Language]
cache:
  backend: sturdyc
  ttl:
    short: 10s
auth:
  defaultLevel: USER
  roles:
    editor: ADMIN
    root: GOD
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/graphql", cfg.Server.Path)
	assert.Equal(t, 3*time.Second, cfg.Server.Timeout)
	assert.Equal(t, []string{"Authorization", "Accept-Language"}, cfg.Server.MetadataHeaders)
	assert.Equal(t, cache.TTLs{Short: 10 * time.Second, Mid: 5 * time.Minute, Long: time.Hour}, cfg.Cache.TTLs)
	assert.Equal(t, auth.User, cfg.Auth.DefaultLevel)
	assert.Equal(t, map[string]auth.Level{"editor": auth.Admin, "root": auth.God}, cfg.Auth.Roles)

	log, err := cfg.Log.Logger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "server:\n  port: 1\n", "field port not found"},
		{"unknown level", "auth:\n  defaultLevel: ROOT\n", "unknown authorization level"},
		{"backend", "cache:\n  backend: memcached\n", "backend: must be a valid value"},
		{"ttl", "cache:\n  ttl:\n    mid: 0s\n", "mid: must be positive"},
		{"redis addrs", "cache:\n  backend: redis\n  redis:\n    addrs: []\n", "addrs: cannot be blank"},
		{"sturdyc", "cache:\n  backend: sturdyc\n  sturdyc:\n    evictionPercentage: 200\n", "evictionPercentage"},
		{"log level", "log:\n  level: loud\n", "level"},
		{"short secret", "auth:\n  jwt:\n    secret: abc\n", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRedisIgnoredForOtherBackends(t *testing.T) {
	_, err := Parse([]byte("cache:\n  backend: memory\n  redis:\n    addrs: []\n"))
	require.NoError(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gqlplug.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  enabled: false\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Metrics.Enabled)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}
