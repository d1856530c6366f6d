package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/metrics"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

const (
	DefaultQueue    = "queue"
	DefaultMaxRetry = 5

	retryInterval = 200 * time.Millisecond
)

var ErrNotConfigured = errors.New("pipeline: not configured")

type Config struct {
	URL      string
	Queue    string
	MaxRetry int
}

// Result reports how a publish went. Dropped items are not errors.
type Result struct {
	Attempts  int
	Delivered bool
	LastErr   error
}

// RedisListPipeline appends JSON encoded items to a redis list.
type RedisListPipeline struct {
	client   *redis.Client
	queue    string
	maxRetry int
	interval time.Duration
	metrics  *metrics.PrometheusMetrics
	logger   zerolog.Logger
}

func NewRedisListPipeline(ctx context.Context, cfg Config, m *metrics.PrometheusMetrics) (*RedisListPipeline, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: missing redis connection url", ErrNotConfigured)
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", ErrNotConfigured, err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", ErrNotConfigured, err)
	}

	return newRedisListPipeline(client, cfg, m), nil
}

func newRedisListPipeline(client *redis.Client, cfg Config, m *metrics.PrometheusMetrics) *RedisListPipeline {
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = DefaultMaxRetry
	}

	return &RedisListPipeline{
		client:   client,
		queue:    queue,
		maxRetry: maxRetry,
		interval: retryInterval,
		metrics:  m,
		logger:   log.With().Str("component", "redis_pipeline").Str("queue", queue).Logger(),
	}
}

func (p *RedisListPipeline) Queue() string {
	return p.queue
}

// Publish pushes the item, trying at most maxRetry times.
func (p *RedisListPipeline) Publish(ctx context.Context, item shared.Item) (Result, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return Result{}, fmt.Errorf("encode item: %w", err)
	}

	var res Result
	op := func() error {
		res.Attempts++
		if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
			p.logger.Error().Err(err).Str("url", item.URL).Int("attempt", res.Attempts).Msg("Process item failed")
			return err
		}
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), uint64(p.maxRetry-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		res.LastErr = err
		p.metrics.ObservePublish(false)
		return res, nil
	}

	res.Delivered = true
	p.metrics.ObservePublish(true)
	return res, nil
}

func (p *RedisListPipeline) Process(ctx context.Context, item shared.Item) error {
	res, err := p.Publish(ctx, item)
	if err != nil {
		return err
	}
	if !res.Delivered {
		p.logger.Warn().Err(res.LastErr).Int("attempts", res.Attempts).Str("url", item.URL).Msg("Giving up on item")
	}
	return nil
}

func (p *RedisListPipeline) Close(ctx context.Context) error {
	return p.client.Close()
}
