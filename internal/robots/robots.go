package robots

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"

	"github.com/elijahthis/crawl-accessory/internal/middleware"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

const maxRobotsSize = 512 * 1024

// RobotsChecker caches one robots.txt group per host. robots.txt is
// downloaded through the same fetcher as pages, so it also goes through
// the downloader middlewares.
type RobotsChecker struct {
	userAgent string
	fetch     func(ctx context.Context, req *shared.Request) (shared.FetchResult, error)
	cache     map[string]*robotstxt.Group
	mu        sync.RWMutex
}

func NewRobotsChecker(userAgent string, fetch func(ctx context.Context, req *shared.Request) (shared.FetchResult, error)) *RobotsChecker {
	return &RobotsChecker{
		userAgent: userAgent,
		fetch:     fetch,
		cache:     make(map[string]*robotstxt.Group),
	}
}

func (r *RobotsChecker) IsAllowed(ctx context.Context, targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		log.Warn().Err(err).Str("url", targetURL).Msg("Unable to parse url for robots check")
		return false
	}

	r.mu.RLock()
	group, exists := r.cache[u.Host]
	r.mu.RUnlock()

	if !exists {
		var cacheable bool
		group, cacheable = r.fetchRobotsTxt(ctx, u.Scheme, u.Host)

		if cacheable {
			r.mu.Lock()
			r.cache[u.Host] = group
			r.mu.Unlock()
		}
	}

	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

// fetchRobotsTxt reports false when the answer must not be cached, which is
// the case when the proxy was rotated away from the robots.txt response.
func (r *RobotsChecker) fetchRobotsTxt(ctx context.Context, scheme, host string) (*robotstxt.Group, bool) {
	req := shared.NewRequest(scheme+"://"+host+"/robots.txt", 0)
	resp, err := r.fetch(ctx, req)
	if errors.Is(err, middleware.ErrResubmitted) {
		log.Debug().Err(err).Str("host", host).Msg("robots.txt fetch rotated proxy, retrying later")
		return nil, false
	}
	if err != nil {
		log.Debug().Err(err).Str("host", host).Msg("No robots.txt found")
		return nil, true
	}
	if resp.Body == nil {
		return nil, true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, true
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, true
	}

	return data.FindGroup(r.userAgent), true
}
