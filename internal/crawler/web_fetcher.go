package crawler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

type proxyKey struct{}

// WebFetcher downloads pages. A request's Proxy, when set, is honoured per
// request through the transport's Proxy hook.
type WebFetcher struct {
	client *http.Client
}

func NewWebFetcher(timeout time.Duration) *WebFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFromContext

	return &WebFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func proxyFromContext(r *http.Request) (*url.URL, error) {
	p, ok := r.Context().Value(proxyKey{}).(string)
	if !ok || p == "" {
		return nil, nil
	}
	return url.Parse(p)
}

func (f *WebFetcher) Fetch(ctx context.Context, req *shared.Request) (shared.FetchResult, error) {
	if req.Proxy != "" {
		ctx = context.WithValue(ctx, proxyKey{}, req.Proxy)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return shared.FetchResult{}, err
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return shared.FetchResult{}, err
	}

	return shared.FetchResult{
		StatusCode:  resp.StatusCode,
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
