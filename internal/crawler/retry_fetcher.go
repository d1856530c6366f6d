package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

const baseTime = 1 * time.Second
const maxBackoff = 32 * time.Second

// RetryFetcher retries transport errors and 5xx responses. Statuses listed in
// NoRetry are returned straight away so downloader middlewares can act on them.
type RetryFetcher struct {
	Base    shared.Fetcher
	Retries int
	NoRetry []int

	// BackOff overrides the exponential policy, mostly for tests.
	BackOff func() backoff.BackOff
}

func (rf *RetryFetcher) Fetch(ctx context.Context, req *shared.Request) (shared.FetchResult, error) {
	retries := rf.Retries
	if retries < 1 {
		retries = 1
	}

	var (
		result  shared.FetchResult
		attempt int
	)
	op := func() error {
		attempt++
		resp, err := rf.Base.Fetch(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("url", req.URL).Int("attempt", attempt).Msg("Fetch failed")
			return err
		}
		if attempt < retries && rf.retryable(resp.StatusCode) {
			if resp.Body != nil {
				resp.Body.Close()
			}
			log.Warn().Str("url", req.URL).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Retrying status")
			return fmt.Errorf("retryable status code: %d", resp.StatusCode)
		}
		result = resp
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(rf.newBackOff(), uint64(retries-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return shared.FetchResult{}, err
	}
	return result, nil
}

func (rf *RetryFetcher) retryable(status int) bool {
	for _, s := range rf.NoRetry {
		if s == status {
			return false
		}
	}
	return status >= http.StatusInternalServerError
}

func (rf *RetryFetcher) newBackOff() backoff.BackOff {
	if rf.BackOff != nil {
		return rf.BackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseTime
	b.MaxInterval = maxBackoff
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return b
}
