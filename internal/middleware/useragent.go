package middleware

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

const DefaultUserAgent = "CrawlAccessory/1.0"

// UserAgentMiddleware sets a random User-Agent on requests that have none.
type UserAgentMiddleware struct {
	agents []string
	pick   func(n int) int
}

// NewUserAgentMiddleware prefers agents from listFile, then list, then the
// single fallback agent.
func NewUserAgentMiddleware(listFile string, list []string, fallback string) (*UserAgentMiddleware, error) {
	var agents []string

	switch {
	case listFile != "":
		loaded, err := loadUserAgents(listFile)
		if err != nil {
			return nil, err
		}
		agents = loaded
	case len(list) > 0:
		agents = append(agents, list...)
	default:
		if fallback == "" {
			fallback = DefaultUserAgent
		}
		agents = []string{fallback}
	}

	return &UserAgentMiddleware{
		agents: agents,
		pick:   rand.Intn,
	}, nil
}

func loadUserAgents(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open user agent list: %w", err)
	}
	defer f.Close()

	var agents []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			agents = append(agents, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read user agent list: %w", err)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("user agent list %s is empty", path)
	}
	return agents, nil
}

func (u *UserAgentMiddleware) ProcessRequest(ctx context.Context, req *shared.Request) error {
	agent := u.agents[u.pick(len(u.agents))]
	if agent == "" {
		return nil
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", agent)
	}
	return nil
}

func (u *UserAgentMiddleware) ProcessResponse(ctx context.Context, req *shared.Request, resp shared.FetchResult) (Outcome, error) {
	return Outcome{Action: Complete}, nil
}
