package proxy

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/metrics"
)

// Rotator hands out the current proxy from its cache and sources a new one
// on a miss or when forced.
//
// Acquire is not exclusive: concurrent forced acquisitions may each source a
// proxy and the last write to the cache wins.
type Rotator struct {
	cache   Cache
	source  Source
	enabled bool
	ttl     time.Duration
	key     string
	metrics *metrics.PrometheusMetrics
	logger  zerolog.Logger
}

func NewRotator(cache Cache, source Source, cfg Config, m *metrics.PrometheusMetrics) *Rotator {
	key := cfg.CacheKey
	if key == "" {
		key = DefaultCacheKey
	}

	return &Rotator{
		cache:   cache,
		source:  source,
		enabled: cfg.Enabled,
		ttl:     time.Duration(cfg.TTL) * time.Second,
		key:     key,
		metrics: m,
		logger:  log.With().Str("component", "proxy_rotator").Logger(),
	}
}

func (r *Rotator) Enabled() bool {
	return r.enabled
}

// Acquire returns the proxy to use, or "" when none is available.
func (r *Rotator) Acquire(ctx context.Context, forceNew bool) (string, error) {
	if !r.enabled {
		return "", nil
	}

	if !forceNew {
		proxy, ok, err := r.cache.Get(ctx, r.key)
		if err != nil {
			r.metrics.ObserveProxy(metrics.ProxyError)
			return "", fmt.Errorf("%w: cache read: %v", ErrBackendUnavailable, err)
		}
		if ok && proxy != "" {
			r.metrics.ObserveProxy(metrics.ProxyCacheHit)
			return proxy, nil
		}
	}

	proxy, err := r.source.Next(ctx)
	if err != nil {
		r.metrics.ObserveProxy(metrics.ProxyError)
		return "", fmt.Errorf("%w: source: %v", ErrBackendUnavailable, err)
	}
	if proxy == "" {
		r.metrics.ObserveProxy(metrics.ProxyNone)
		return "", nil
	}

	if err := r.cache.Set(ctx, r.key, proxy, r.ttl); err != nil {
		// still usable for this request; the next acquire sources again
		r.logger.Warn().Err(err).Str("proxy", proxy).Msg("Failed to cache proxy")
	}
	r.metrics.ObserveProxy(metrics.ProxySourced)
	r.logger.Debug().Str("proxy", proxy).Bool("forced", forceNew).Msg("Sourced new proxy")

	return proxy, nil
}

// Close releases the cache connection, if the cache holds one.
func (r *Rotator) Close() error {
	if c, ok := r.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
