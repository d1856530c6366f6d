package middleware

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/metrics"
	"github.com/elijahthis/crawl-accessory/internal/proxy"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

// Acquirer hands out proxies; *proxy.Rotator implements it.
type Acquirer interface {
	Acquire(ctx context.Context, forceNew bool) (string, error)
}

// ProxyMiddleware attaches the current proxy to outgoing requests and rotates
// it when a response status says the proxy is throttled or banned.
type ProxyMiddleware struct {
	rotator      Acquirer
	changeStatus map[int]struct{}
	failClosed   bool
	metrics      *metrics.PrometheusMetrics
	logger       zerolog.Logger
}

func NewProxyMiddleware(rotator Acquirer, cfg proxy.Config, m *metrics.PrometheusMetrics) *ProxyMiddleware {
	statuses := make(map[int]struct{})
	for _, code := range cfg.StatusCodes() {
		statuses[code] = struct{}{}
	}

	return &ProxyMiddleware{
		rotator:      rotator,
		changeStatus: statuses,
		failClosed:   cfg.FailClosed,
		metrics:      m,
		logger:       log.With().Str("component", "proxy_middleware").Logger(),
	}
}

func (p *ProxyMiddleware) ProcessRequest(ctx context.Context, req *shared.Request) error {
	addr, err := p.rotator.Acquire(ctx, false)
	if err != nil {
		if p.failClosed {
			return err
		}
		p.logger.Warn().Err(err).Str("url", req.URL).Msg("Proxy unavailable, continuing without proxy")
		return nil
	}
	if addr == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(req.URL, "http://"):
		req.Proxy = "http://" + addr
	case strings.HasPrefix(req.URL, "https://"):
		req.Proxy = "https://" + addr
	}
	return nil
}

func (p *ProxyMiddleware) ProcessResponse(ctx context.Context, req *shared.Request, resp shared.FetchResult) (Outcome, error) {
	if req.Proxy != "" {
		p.logger.Debug().
			Str("url", req.URL).
			Int("status", resp.StatusCode).
			Str("proxy", req.Proxy).
			Msg("Fetched through proxy")
	}

	if _, ok := p.changeStatus[resp.StatusCode]; !ok {
		return Outcome{Action: Complete}, nil
	}

	p.metrics.ObserveRotation(resp.StatusCode)
	// warms the cache for the next dispatch; the retried request is not pinned to it
	if _, err := p.rotator.Acquire(ctx, true); err != nil {
		p.logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("Forced proxy rotation failed")
	}

	next := req.Copy()
	next.DontFilter = true

	return Outcome{Action: Resubmit, Request: next}, nil
}
