package frontier

import (
	"context"
	"sync"
	"time"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

type InMemFrontier struct {
	mu      sync.Mutex
	pending []*shared.Request
	visited map[string]struct{}
	dead    []DeadLetter
}

func NewInMemFrontier() *InMemFrontier {
	return &InMemFrontier{
		pending: make([]*shared.Request, 0),
		visited: make(map[string]struct{}),
	}
}

func (f *InMemFrontier) Push(ctx context.Context, urls []string, depth int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range urls {
		if _, exists := f.visited[u]; exists {
			continue
		}

		f.pending = append(f.pending, shared.NewRequest(u, depth))
		f.visited[u] = struct{}{}
	}
	return nil
}

func (f *InMemFrontier) Requeue(ctx context.Context, req *shared.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.visited[req.URL]; exists && !req.DontFilter {
		return nil
	}
	f.visited[req.URL] = struct{}{}
	f.pending = append(f.pending, req)
	return nil
}

func (f *InMemFrontier) Pop(ctx context.Context) (*shared.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil, ErrQueueEmpty
	}

	target := f.pending[0]
	f.pending = f.pending[1:]

	return target, nil
}

func (f *InMemFrontier) Complete(ctx context.Context, id string) error {
	return nil
}

func (f *InMemFrontier) PushDLQ(ctx context.Context, req *shared.Request, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dead = append(f.dead, DeadLetter{
		Request: req,
		Error:   reason,
		Time:    time.Now().Format(time.RFC3339),
	})
	return nil
}

// DeadLetters returns a snapshot of the dead letter queue.
func (f *InMemFrontier) DeadLetters() []DeadLetter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeadLetter(nil), f.dead...)
}

func (f *InMemFrontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
