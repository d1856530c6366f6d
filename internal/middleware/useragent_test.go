package middleware

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elijahthis/crawl-accessory/internal/proxy"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

func TestUserAgentSourcePriority(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "agents.txt")
	require.NoError(t, os.WriteFile(file, []byte("agent-from-file\n\n  \n"), 0o644))

	mw, err := NewUserAgentMiddleware(file, []string{"agent-from-list"}, "fallback")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-from-file"}, mw.agents)

	mw, err = NewUserAgentMiddleware("", []string{"agent-from-list"}, "fallback")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-from-list"}, mw.agents)

	mw, err = NewUserAgentMiddleware("", nil, "fallback")
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, mw.agents)

	mw, err = NewUserAgentMiddleware("", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultUserAgent}, mw.agents)
}

func TestUserAgentMissingFile(t *testing.T) {
	_, err := NewUserAgentMiddleware(filepath.Join(t.TempDir(), "missing.txt"), nil, "")
	assert.Error(t, err)
}

func TestUserAgentKeepsExistingHeader(t *testing.T) {
	mw, err := NewUserAgentMiddleware("", []string{"a", "b"}, "")
	require.NoError(t, err)
	mw.pick = func(n int) int { return n - 1 }

	req := shared.NewRequest("http://example.com", 0)
	require.NoError(t, mw.ProcessRequest(context.Background(), req))
	assert.Equal(t, "b", req.Header.Get("User-Agent"))

	req.Header.Set("User-Agent", "custom")
	require.NoError(t, mw.ProcessRequest(context.Background(), req))
	assert.Equal(t, "custom", req.Header.Get("User-Agent"))
}

func TestChainStopsAtResubmit(t *testing.T) {
	ua, err := NewUserAgentMiddleware("", nil, "ua")
	require.NoError(t, err)
	acq := &stubAcquirer{proxy: "1.2.3.4:8080"}
	chain := Chain{ua, NewProxyMiddleware(acq, proxy.Config{}, nil)}

	req := shared.NewRequest("http://example.com", 0)
	require.NoError(t, chain.ProcessRequest(context.Background(), req))
	assert.Equal(t, "ua", req.Header.Get("User-Agent"))
	assert.Equal(t, "http://1.2.3.4:8080", req.Proxy)

	out, err := chain.ProcessResponse(context.Background(), req, shared.FetchResult{StatusCode: 429})
	require.NoError(t, err)
	assert.Equal(t, Resubmit, out.Action)

	out, err = chain.ProcessResponse(context.Background(), req, shared.FetchResult{StatusCode: 200})
	require.NoError(t, err)
	assert.Equal(t, Complete, out.Action)
}
