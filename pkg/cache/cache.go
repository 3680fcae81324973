// Package cache holds fetched provider payloads in memory, bounded per scope
// and optionally expiring.
package cache

import "time"

// Cache is a scoped byte cache with optional TTL. A scope is usually the name
// of the provider that owns the entries.
type Cache interface {
	Put(scope, key string, value []byte, opts ...Option)
	Get(scope, key string) (Entry, bool)
	Delete(scope, key string) bool
	Purge(scope string) int
	Keys(scope string) []string
	Len() int
}

// Entry is one cached payload.
type Entry struct {
	Scope     string     `json:"scope"`
	Key       string     `json:"key"`
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	StoredAt  time.Time  `json:"stored_at"`
	Hits      int        `json:"hits"`
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

type putOptions struct {
	ttl time.Duration
}

// Option configures a Put.
type Option func(*putOptions)

// WithTTL expires the entry after d.
func WithTTL(d time.Duration) Option {
	return func(o *putOptions) {
		o.ttl = d
	}
}
