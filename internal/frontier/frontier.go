package frontier

import (
	"context"
	"errors"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

var ErrQueueEmpty = errors.New("Frontier queue is empty")

// Frontier queues requests. Push drops URLs that were already seen; Requeue
// only does so when the request does not set DontFilter.
type Frontier interface {
	Push(ctx context.Context, urls []string, depth int) error
	Requeue(ctx context.Context, req *shared.Request) error
	Pop(ctx context.Context) (*shared.Request, error)
	Complete(ctx context.Context, id string) error
	PushDLQ(ctx context.Context, req *shared.Request, reason string) error
}

type DeadLetter struct {
	Request *shared.Request `json:"request"`
	Error   string          `json:"error"`
	Time    string          `json:"time"`
}
