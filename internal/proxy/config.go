package proxy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/elijahthis/crawl-accessory/internal/metrics"
)

const apiTimeout = 10 * time.Second

// MaxTTL is the largest PROXY_TTL, in seconds, that fits a time.Duration.
const MaxTTL = math.MaxInt64 / int64(time.Second)

var DefaultChangeStatus = []int{429}

type Config struct {
	Enabled      bool
	Host         string
	Cache        string
	TTL          int
	ChangeStatus []int
	CacheKey     string
	API          string
	FailClosed   bool
}

type Backend int

const (
	BackendLocal Backend = iota
	BackendShared
)

func (b Backend) String() string {
	switch b {
	case BackendLocal:
		return "local"
	case BackendShared:
		return "shared"
	default:
		return "unknown"
	}
}

// Backend picks the cache variant from the PROXY_CACHE value.
func (c Config) Backend() (Backend, error) {
	switch {
	case c.Cache == "":
		return BackendLocal, nil
	case strings.HasPrefix(c.Cache, "redis://"), strings.HasPrefix(c.Cache, "rediss://"):
		return BackendShared, nil
	default:
		return BackendLocal, fmt.Errorf("%w: unsupported cache %q", ErrNotConfigured, c.Cache)
	}
}

func (c Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("%w: negative ttl %d", ErrNotConfigured, c.TTL)
	}
	if int64(c.TTL) > MaxTTL {
		return fmt.Errorf("%w: ttl %d exceeds %d seconds", ErrNotConfigured, c.TTL, MaxTTL)
	}
	for _, code := range c.ChangeStatus {
		if code < 100 || code > 599 {
			return fmt.Errorf("%w: invalid change status %d", ErrNotConfigured, code)
		}
	}
	_, err := c.Backend()
	return err
}

func (c Config) StatusCodes() []int {
	if len(c.ChangeStatus) == 0 {
		return DefaultChangeStatus
	}
	return c.ChangeStatus
}

func NewCache(ctx context.Context, cfg Config) (Cache, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendShared:
		return NewRedisCache(ctx, cfg.Cache)
	default:
		return NewLocalCache(), nil
	}
}

func NewSource(cfg Config) Source {
	if cfg.API != "" {
		return NewAPISource(cfg.API, apiTimeout)
	}
	return StaticSource(cfg.Host)
}

// New validates cfg and builds a rotator with the configured cache and source.
func New(ctx context.Context, cfg Config, m *metrics.PrometheusMetrics) (*Rotator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var cache Cache = NewLocalCache()
	if cfg.Enabled {
		var err error
		if cache, err = NewCache(ctx, cfg); err != nil {
			return nil, err
		}
	}

	return NewRotator(cache, NewSource(cfg), cfg, m), nil
}
