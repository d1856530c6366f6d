package proxy

import (
	"context"
	"time"
)

// DefaultCacheKey is the key the current proxy is stored under.
const DefaultCacheKey = "SCRAPY_PROXY"

// Cache stores proxy values with a time to live. A zero ttl never expires.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Record is a cached proxy. A zero ExpiresAt never expires.
type Record struct {
	Value     string
	ExpiresAt time.Time
}

func newRecord(value string, ttl time.Duration, now time.Time) Record {
	rec := Record{Value: value}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	}
	return rec
}

// Visible reports whether the record may still be served at now.
func (r Record) Visible(now time.Time) bool {
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}
