package cmdfactory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/elijahthis/crawl-accessory/internal/crawler"
	"github.com/elijahthis/crawl-accessory/internal/frontier"
	"github.com/elijahthis/crawl-accessory/internal/metrics"
	"github.com/elijahthis/crawl-accessory/internal/middleware"
	"github.com/elijahthis/crawl-accessory/internal/parser"
	"github.com/elijahthis/crawl-accessory/internal/pipeline"
	"github.com/elijahthis/crawl-accessory/internal/proxy"
	"github.com/elijahthis/crawl-accessory/internal/robots"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

type crawlerFactory struct {
	RDB         *redis.Client
	Metrics     *metrics.PrometheusMetrics
	Registry    *prometheus.Registry
	Frontier    frontier.Frontier
	Fetcher     shared.Fetcher
	Rotator     *proxy.Rotator
	Downloader  middleware.Chain
	RateLimiter shared.RateLimiter
	Robots      *robots.RobotsChecker
	Pipelines   []shared.ItemPipeline
	Coordinator *crawler.Coordinator
}

// CrawlerNew builds every component. Configuration problems are returned
// here so the command aborts before crawling.
func CrawlerNew(ctx context.Context, cfg *Config) (*crawlerFactory, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := &crawlerFactory{
		Registry: reg,
		Metrics:  metrics.NewMetrics(reg),
	}

	if cfg.FrontierRedisURL != "" {
		rdb, err := newRedisClient(ctx, cfg.FrontierRedisURL)
		if err != nil {
			return nil, err
		}
		f.RDB = rdb
	}

	rotator, err := newRotator(ctx, cfg, f.Metrics)
	if err != nil {
		f.Close(ctx)
		return nil, err
	}
	f.Rotator = rotator

	downloader, err := newDownloader(cfg, rotator, f.Metrics)
	if err != nil {
		f.Close(ctx)
		return nil, err
	}

	pipelines, err := newPipelines(ctx, cfg, f.Metrics)
	if err != nil {
		f.Close(ctx)
		return nil, err
	}

	f.Frontier = newFrontier(f.RDB)
	f.Fetcher = newFetcher(cfg)
	f.Downloader = downloader
	f.RateLimiter = newRateLimiter(f.RDB)
	f.Robots = newRobot(cfg, f.Downloader, f.Fetcher)
	f.Pipelines = pipelines
	f.Coordinator = newCoordinator(f, cfg)

	return f, nil
}

func newCoordinator(f *crawlerFactory, cfg *Config) *crawler.Coordinator {
	return crawler.NewCoordinator(f.Frontier, f.Fetcher, parser.NewHTMLParser(), f.Downloader, f.Pipelines,
		f.RateLimiter, f.Robots, f.Metrics, crawler.Options{
			Workers:      cfg.WorkerCount,
			Delay:        time.Duration(cfg.DownloadDelayMS) * time.Millisecond,
			MaxDepth:     cfg.DepthLimit,
			MaxResubmits: cfg.MaxResubmits,
			CrossDomain:  cfg.CrawlCrossDomain,
			IdleExit:     time.Duration(cfg.IdleExitSeconds) * time.Second,
		})
}

// StartMetrics serves /metrics and samples redis queue depths until ctx ends.
func (f *crawlerFactory) StartMetrics(ctx context.Context, cfg *Config) {
	if cfg.MetricsPort > 0 {
		go metrics.StartNewMetricsServer(ctx, ":"+strconv.Itoa(cfg.MetricsPort), f.Registry)
	}
	if f.RDB == nil {
		return
	}

	queuesToWatch := map[string]string{
		"frontier": frontier.QueueKey,
		"dlq":      frontier.DLQKey,
	}
	if cfg.RedisConnectionURL != "" {
		queuesToWatch["items"] = cfg.RedisDefaultQueue
		if queuesToWatch["items"] == "" {
			queuesToWatch["items"] = pipeline.DefaultQueue
		}
	}
	go f.Metrics.MonitorQueueDepth(ctx, f.RDB, queuesToWatch)
}

// Close flushes pipelines (uploading the feed) and releases redis.
func (f *crawlerFactory) Close(ctx context.Context) error {
	var errs []error
	if f.Coordinator != nil {
		errs = append(errs, f.Coordinator.Close(ctx))
	}
	if f.Rotator != nil {
		errs = append(errs, f.Rotator.Close())
	}
	if f.RDB != nil {
		errs = append(errs, f.RDB.Close())
	}
	return errors.Join(errs...)
}
