package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Source hands out a new proxy in <host>:<port> form. An empty result
// means no proxy is available right now.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Next(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticSource always returns the same proxy.
type StaticSource string

func (s StaticSource) Next(ctx context.Context) (string, error) {
	return string(s), nil
}

// APISource allocates proxies from a remote HTTP endpoint whose body is the
// proxy address.
type APISource struct {
	endpoint string
	client   *http.Client
}

func NewAPISource(endpoint string, timeout time.Duration) *APISource {
	return &APISource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *APISource) Next(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("proxy api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", fmt.Errorf("proxy api: read body: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}
