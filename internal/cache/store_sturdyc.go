package cache

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdycConfig sizes a SturdycStore.
type SturdycConfig struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"shards"`
	MaxTTL             time.Duration `yaml:"maxTTL"`
	EvictionPercentage int           `yaml:"evictionPercentage"`
}

func DefaultSturdycConfig() SturdycConfig {
	return SturdycConfig{Capacity: 10000, NumShards: 10, MaxTTL: time.Hour, EvictionPercentage: 10}
}

type sturdycEntry struct {
	value   string
	expires time.Time
}

// SturdycStore is a bounded, sharded in-process Store. sturdyc applies one
// ttl to the whole client, so entries carry their own expiry which is
// checked on read. Entries whose ttl exceeds MaxTTL are dropped early.
type SturdycStore struct {
	client *sturdyc.Client[sturdycEntry]
	now    func() time.Time
}

func NewSturdycStore(cfg SturdycConfig) *SturdycStore {
	d := DefaultSturdycConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = d.Capacity
	}
	if cfg.NumShards <= 0 {
		cfg.NumShards = d.NumShards
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = d.MaxTTL
	}
	if cfg.EvictionPercentage <= 0 {
		cfg.EvictionPercentage = d.EvictionPercentage
	}
	return &SturdycStore{
		client: sturdyc.New[sturdycEntry](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage),
		now:    time.Now,
	}
}

func (s *SturdycStore) Get(_ context.Context, key string) (string, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return "", false, nil
	}
	if s.now().After(e.expires) {
		s.client.Delete(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *SturdycStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.client.Set(key, sturdycEntry{value: value, expires: s.now().Add(ttl)})
	return nil
}
