package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

const (
	QueueKey   = "crawler:queue"
	VisitedKey = "crawler:visited"
	DLQKey     = "crawler:dlq"
)

type RedisFrontier struct {
	client     *redis.Client
	queueKey   string
	visitedKey string
	dlqKey     string
}

func NewRedisFrontier(rdb *redis.Client) *RedisFrontier {
	return &RedisFrontier{
		client:     rdb,
		queueKey:   QueueKey,
		visitedKey: VisitedKey,
		dlqKey:     DLQKey,
	}
}

func (f *RedisFrontier) Push(ctx context.Context, urls []string, depth int) error {
	for _, u := range urls {
		if err := f.enqueue(ctx, shared.NewRequest(u, depth)); err != nil {
			return err
		}
	}
	return nil
}

func (f *RedisFrontier) Requeue(ctx context.Context, req *shared.Request) error {
	if req.DontFilter {
		if err := f.client.SAdd(ctx, f.visitedKey, req.URL).Err(); err != nil {
			return err
		}
		return f.rpush(ctx, req)
	}
	return f.enqueue(ctx, req)
}

func (f *RedisFrontier) enqueue(ctx context.Context, req *shared.Request) error {
	isNew, err := f.client.SAdd(ctx, f.visitedKey, req.URL).Result()
	if err != nil {
		return err
	}
	if isNew == 0 {
		return nil
	}

	if err := f.rpush(ctx, req); err != nil {
		return err
	}
	log.Debug().Str("url", req.URL).Int("depth", req.Depth).Msg("Pushed to frontier")
	return nil
}

func (f *RedisFrontier) rpush(ctx context.Context, req *shared.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return f.client.RPush(ctx, f.queueKey, data).Err()
}

func (f *RedisFrontier) Pop(ctx context.Context) (*shared.Request, error) {
	data, err := f.client.LPop(ctx, f.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, err
	}

	var req shared.Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, err
	}

	return &req, nil
}

func (f *RedisFrontier) Complete(ctx context.Context, id string) error {
	return nil
}

func (f *RedisFrontier) PushDLQ(ctx context.Context, req *shared.Request, reason string) error {
	dl := DeadLetter{
		Request: req,
		Error:   reason,
		Time:    time.Now().Format(time.RFC3339),
	}

	data, err := json.Marshal(dl)
	if err != nil {
		return err
	}

	return f.client.RPush(ctx, f.dlqKey, data).Err()
}
