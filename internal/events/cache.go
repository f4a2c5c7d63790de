package events

import "time"

// CacheLookup is emitted after each response cache probe.
type CacheLookup struct {
	Mode     string
	Hit      bool
	Err      error
	Duration time.Duration
}

// CacheStore is emitted after a response was written to the cache, or the
// write failed.
type CacheStore struct {
	Mode  string
	Scope string
	TTL   time.Duration
	Err   error
}

// CacheSkip is emitted when a response is not stored.
type CacheSkip struct {
	Reason string
}
