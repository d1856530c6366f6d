package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/frontier"
	"github.com/elijahthis/crawl-accessory/internal/metrics"
	"github.com/elijahthis/crawl-accessory/internal/middleware"
	"github.com/elijahthis/crawl-accessory/internal/robots"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

const (
	DefaultMaxResubmits = 3

	maxBodySize  = 10 << 20
	emptyBackoff = 500 * time.Millisecond
)

type Options struct {
	Workers      int
	Delay        time.Duration
	MaxDepth     int // 0 means unlimited
	MaxResubmits int
	CrossDomain  bool
	// IdleExit stops the workers once the frontier has been empty and no
	// request has been in flight for this long. Zero runs until ctx ends.
	IdleExit time.Duration
}

type Coordinator struct {
	frontier   frontier.Frontier
	fetcher    shared.Fetcher
	parser     shared.Parser
	downloader middleware.Chain
	pipelines  []shared.ItemPipeline
	limiter    shared.RateLimiter
	robots     *robots.RobotsChecker
	metrics    *metrics.PrometheusMetrics
	opts       Options

	inFlight atomic.Int64
}

func NewCoordinator(f frontier.Frontier, fetch shared.Fetcher, p shared.Parser, chain middleware.Chain, pipelines []shared.ItemPipeline,
	l shared.RateLimiter, r *robots.RobotsChecker, m *metrics.PrometheusMetrics, opts Options) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxResubmits <= 0 {
		opts.MaxResubmits = DefaultMaxResubmits
	}

	return &Coordinator{
		frontier:   f,
		fetcher:    fetch,
		parser:     p,
		downloader: chain,
		pipelines:  pipelines,
		limiter:    l,
		robots:     r,
		metrics:    m,
		opts:       opts,
	}
}

// Download fetches req through both hooks of chain. A response the chain
// wants resubmitted (a proxy rotation) is closed and reported as
// middleware.ErrResubmitted.
func Download(chain middleware.Chain, fetch shared.Fetcher) func(ctx context.Context, req *shared.Request) (shared.FetchResult, error) {
	return func(ctx context.Context, req *shared.Request) (shared.FetchResult, error) {
		if err := chain.ProcessRequest(ctx, req); err != nil {
			return shared.FetchResult{}, err
		}
		resp, err := fetch.Fetch(ctx, req)
		if err != nil {
			return shared.FetchResult{}, err
		}

		out, err := chain.ProcessResponse(ctx, req, resp)
		if err == nil && out.Action == middleware.Resubmit {
			err = fmt.Errorf("%w: status %d", middleware.ErrResubmitted, resp.StatusCode)
		}
		if err != nil {
			if resp.Body != nil {
				resp.Body.Close()
			}
			return shared.FetchResult{}, err
		}
		return resp, nil
	}
}

func (c *Coordinator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Info().Msg("All workers shut down cleanly")
}

// Close flushes every item pipeline.
func (c *Coordinator) Close(ctx context.Context) error {
	var errs []error
	for _, p := range c.pipelines {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) worker(ctx context.Context, id int) {
	logger := log.With().Int("worker_id", id).Logger()
	var idleSince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := c.frontier.Pop(ctx)
		if err != nil {
			if !errors.Is(err, frontier.ErrQueueEmpty) {
				logger.Error().Err(err).Msg("Frontier error")
			}
			if c.idle(&idleSince) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.emptyBackoff()):
			}
			continue
		}
		idleSince = time.Time{}

		c.inFlight.Add(1)
		c.process(ctx, logger.With().Str("url", req.URL).Logger(), req)
		c.inFlight.Add(-1)

		if err := c.frontier.Complete(ctx, req.ID); err != nil {
			logger.Error().Err(err).Str("url", req.URL).Msg("Failed to mark request complete")
		}
	}
}

func (c *Coordinator) idle(since *time.Time) bool {
	if c.opts.IdleExit <= 0 || c.inFlight.Load() > 0 {
		*since = time.Time{}
		return false
	}
	if since.IsZero() {
		*since = time.Now()
		return false
	}
	return time.Since(*since) >= c.opts.IdleExit
}

func (c *Coordinator) emptyBackoff() time.Duration {
	if c.opts.IdleExit > 0 && c.opts.IdleExit < emptyBackoff {
		return c.opts.IdleExit / 2
	}
	return emptyBackoff
}

func (c *Coordinator) process(ctx context.Context, itemLog zerolog.Logger, req *shared.Request) {
	domain, err := shared.GetDomain(req.URL)
	if err != nil {
		itemLog.Error().Err(err).Msg("Invalid URL in queue")
		return
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, domain, c.opts.Delay); err != nil {
			itemLog.Error().Err(err).Msg("Rate Limiter error")
			c.deadLetter(ctx, itemLog, req, "rate limiter: "+err.Error())
			return
		}
	}

	if c.robots != nil && !c.robots.IsAllowed(ctx, req.URL) {
		itemLog.Info().Msg("Blocked by robots.txt")
		c.metrics.ObserveRobotsBlocked()
		return
	}

	if err := c.downloader.ProcessRequest(ctx, req); err != nil {
		itemLog.Error().Err(err).Msg("Downloader middleware rejected request")
		c.deadLetter(ctx, itemLog, req, err.Error())
		return
	}

	start := time.Now()
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		itemLog.Error().Err(err).Msg("Failed Final")
		c.metrics.ObserveFetchError("transport")
		c.deadLetter(ctx, itemLog, req, err.Error())
		return
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	c.metrics.ObserveFetch(resp.StatusCode, time.Since(start))

	out, err := c.downloader.ProcessResponse(ctx, req, resp)
	if err != nil {
		itemLog.Error().Err(err).Msg("Downloader middleware failed on response")
		c.deadLetter(ctx, itemLog, req, err.Error())
		return
	}

	if out.Action == middleware.Resubmit {
		c.resubmit(ctx, itemLog, out.Request, resp.StatusCode)
		return
	}

	c.handleResponse(ctx, itemLog, req, resp)
}

func (c *Coordinator) resubmit(ctx context.Context, itemLog zerolog.Logger, next *shared.Request, status int) {
	if next.Resubmits >= c.opts.MaxResubmits {
		itemLog.Warn().Int("resubmits", next.Resubmits).Int("status", status).Msg("Giving up after repeated proxy failures")
		c.deadLetter(ctx, itemLog, next, fmt.Sprintf("status %d after %d resubmits", status, next.Resubmits))
		return
	}

	next.Resubmits++
	if err := c.frontier.Requeue(ctx, next); err != nil {
		itemLog.Error().Err(err).Msg("Failed to resubmit request")
		return
	}
	c.metrics.ObserveResubmit(status)
	itemLog.Info().Int("status", status).Int("resubmits", next.Resubmits).Msg("Resubmitted request")
}

func (c *Coordinator) handleResponse(ctx context.Context, itemLog zerolog.Logger, req *shared.Request, resp shared.FetchResult) {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		itemLog.Warn().Int("status", resp.StatusCode).Msg("Unexpected status, dropping response")
		c.metrics.ObserveFetchError("status")
		return
	}

	item := shared.Item{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Status:    resp.StatusCode,
		Depth:     req.Depth,
		Proxy:     req.Proxy,
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if resp.Body != nil && isHTML(resp.ContentType) {
		parsed, err := c.parser.Parse(ctx, io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			itemLog.Error().Err(err).Msg("Parse error")
		}
		item.Title = parsed.Title
		item.Text = parsed.Text
		item.Links = c.followLinks(ctx, itemLog, req, parsed.Links)
	}

	for _, p := range c.pipelines {
		if err := p.Process(ctx, item); err != nil {
			itemLog.Error().Err(err).Msg("Item pipeline error")
		}
	}
	itemLog.Info().Int("status", resp.StatusCode).Int("links", len(item.Links)).Msg("Fetched")
}

func (c *Coordinator) followLinks(ctx context.Context, itemLog zerolog.Logger, req *shared.Request, links []string) []string {
	var absoluteLinks []string
	for _, link := range links {
		abs, err := shared.ResolveURL(req.URL, link)
		if err != nil || !shared.IsCrawlable(abs) {
			continue
		}

		if !c.opts.CrossDomain {
			isSameDomain, err := shared.SameDomain(req.URL, abs)
			if err != nil || !isSameDomain {
				continue
			}
		}
		absoluteLinks = append(absoluteLinks, abs)
	}

	if len(absoluteLinks) == 0 || (c.opts.MaxDepth > 0 && req.Depth >= c.opts.MaxDepth) {
		return absoluteLinks
	}
	if err := c.frontier.Push(ctx, absoluteLinks, req.Depth+1); err != nil {
		itemLog.Error().Err(err).Msg("Frontier Push Error")
	}
	return absoluteLinks
}

func (c *Coordinator) deadLetter(ctx context.Context, itemLog zerolog.Logger, req *shared.Request, reason string) {
	if err := c.frontier.PushDLQ(ctx, req, reason); err != nil {
		itemLog.Error().Err(err).Msg("Failed to push to DLQ")
	}
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "html")
}
