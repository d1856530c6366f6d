package proxy

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalCache is an in-process Cache. The janitor is off; expired records
// are evicted on read.
type LocalCache struct {
	items *gocache.Cache
	now   func() time.Time
}

func NewLocalCache() *LocalCache {
	return &LocalCache{
		items: gocache.New(gocache.NoExpiration, 0),
		now:   time.Now,
	}
}

func (c *LocalCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, found := c.items.Get(key)
	if !found {
		// go-cache hides expired items but keeps them until deleted.
		c.items.Delete(key)
		return "", false, nil
	}

	rec, ok := v.(Record)
	if !ok || !rec.Visible(c.now()) {
		c.items.Delete(key)
		return "", false, nil
	}
	return rec.Value, true, nil
}

func (c *LocalCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	expiration := gocache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	c.items.Set(key, newRecord(value, ttl, c.now()), expiration)
	return nil
}

// Len returns the number of stored records, expired or not.
func (c *LocalCache) Len() int {
	return c.items.ItemCount()
}
