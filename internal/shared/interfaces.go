package shared

import (
	"context"
	"io"
	"net/http"
	"time"
)

// interfaces
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (FetchResult, error)
}
type Parser interface {
	Parse(ctx context.Context, r io.Reader) (ParsedData, error)
}
type RateLimiter interface {
	Wait(ctx context.Context, domain string, delay time.Duration) error
}

// ItemPipeline receives every scraped item after a request completes.
type ItemPipeline interface {
	Process(ctx context.Context, item Item) error
	Close(ctx context.Context) error
}

// structs

// Request is the unit of work travelling through the frontier and the
// downloader middlewares. Proxy holds a scheme-qualified proxy URL.
type Request struct {
	ID         string      `json:"id"`
	URL        string      `json:"url"`
	Depth      int         `json:"depth"`
	Header     http.Header `json:"header,omitempty"`
	Proxy      string      `json:"proxy,omitempty"`
	DontFilter bool        `json:"dont_filter,omitempty"`
	Resubmits  int         `json:"resubmits,omitempty"`
}

func NewRequest(u string, depth int) *Request {
	return &Request{
		ID:     u,
		URL:    u,
		Depth:  depth,
		Header: make(http.Header),
	}
}

// Copy returns a deep copy of the request.
func (r *Request) Copy() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

type FetchResult struct {
	StatusCode  int
	Body        io.ReadCloser
	ContentType string
}

type ParsedData struct {
	Title string
	Text  string
	Links []string
}

type Item struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Title     string   `json:"title,omitempty"`
	Text      string   `json:"text,omitempty"`
	Links     []string `json:"links,omitempty"`
	Depth     int      `json:"depth"`
	Proxy     string   `json:"proxy,omitempty"`
	FetchedAt string   `json:"fetched_at"`
}
