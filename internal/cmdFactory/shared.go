package cmdfactory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/crawler"
	"github.com/elijahthis/crawl-accessory/internal/feed"
	"github.com/elijahthis/crawl-accessory/internal/frontier"
	"github.com/elijahthis/crawl-accessory/internal/limiter"
	"github.com/elijahthis/crawl-accessory/internal/metrics"
	"github.com/elijahthis/crawl-accessory/internal/middleware"
	"github.com/elijahthis/crawl-accessory/internal/pipeline"
	"github.com/elijahthis/crawl-accessory/internal/proxy"
	"github.com/elijahthis/crawl-accessory/internal/robots"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse frontier redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping frontier redis: %w", err)
	}
	return rdb, nil
}

func newFetcher(cfg *Config) shared.Fetcher {
	baseFetcher := crawler.NewWebFetcher(time.Duration(cfg.DownloadTimeoutS) * time.Second)
	fetcher := &crawler.RetryFetcher{
		Base:    baseFetcher,
		Retries: cfg.RetryTimes,
		NoRetry: cfg.Proxy().StatusCodes(),
	}
	log.Info().Msg("Starting Fetcher Service...")
	return fetcher
}

func newFrontier(rdb *redis.Client) frontier.Frontier {
	if rdb == nil {
		log.Info().Msg("In-memory frontier created")
		return frontier.NewInMemFrontier()
	}
	log.Info().Msg("Redis frontier created")
	return frontier.NewRedisFrontier(rdb)
}

func newRateLimiter(rdb *redis.Client) shared.RateLimiter {
	if rdb == nil {
		return nil
	}
	return limiter.NewRedisRateLimiter(rdb)
}

func newRotator(ctx context.Context, cfg *Config, met *metrics.PrometheusMetrics) (*proxy.Rotator, error) {
	proxyCfg := cfg.Proxy()
	rotator, err := proxy.New(ctx, proxyCfg, met)
	if err != nil {
		return nil, err
	}
	log.Info().Bool("enabled", proxyCfg.Enabled).Ints("change_status", proxyCfg.StatusCodes()).Msg("Proxy rotator created")
	return rotator, nil
}

func newDownloader(cfg *Config, rotator *proxy.Rotator, met *metrics.PrometheusMetrics) (middleware.Chain, error) {
	ua, err := middleware.NewUserAgentMiddleware(cfg.UserAgentListFile, cfg.UserAgentList, cfg.UserAgent)
	if err != nil {
		return nil, err
	}
	return middleware.Chain{ua, middleware.NewProxyMiddleware(rotator, cfg.Proxy(), met)}, nil
}

func newRobot(cfg *Config, chain middleware.Chain, fetch shared.Fetcher) *robots.RobotsChecker {
	if !cfg.RobotsTxtObey {
		return nil
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = middleware.DefaultUserAgent
	}
	return robots.NewRobotsChecker(agent, crawler.Download(chain, fetch))
}

func newPipelines(ctx context.Context, cfg *Config, met *metrics.PrometheusMetrics) ([]shared.ItemPipeline, error) {
	var pipelines []shared.ItemPipeline

	if cfg.RedisConnectionURL != "" {
		p, err := pipeline.NewRedisListPipeline(ctx, cfg.Pipeline(), met)
		if err != nil {
			return nil, err
		}
		log.Info().Str("queue", p.Queue()).Msg("Redis item pipeline enabled")
		pipelines = append(pipelines, p)
	}

	if cfg.FeedURI != "" {
		uri := feed.ExpandURI(cfg.FeedURI, time.Now())
		storage, err := feed.NewStorage(ctx, uri, cfg.FeedCredentials(), met)
		if err != nil {
			closePipelines(ctx, pipelines)
			return nil, err
		}
		exp, err := feed.NewExporter(storage, cfg.FeedStoreEmpty)
		if err != nil {
			closePipelines(ctx, pipelines)
			return nil, err
		}
		log.Info().Str("uri", redactURI(uri)).Msg("Feed export enabled")
		pipelines = append(pipelines, exp)
	}

	return pipelines, nil
}

func closePipelines(ctx context.Context, pipelines []shared.ItemPipeline) {
	for _, p := range pipelines {
		_ = p.Close(ctx)
	}
}

func redactURI(uri string) string {
	t, err := feed.ParseTarget(uri)
	if err != nil || t.AccessKey == "" {
		return uri
	}
	return t.Scheme + "://***@" + t.Bucket + "/" + t.Key
}
