package pipeline

import (
	"context"
	"net"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// errorHook clears the miniredis error once n commands have failed.
type errorHook struct {
	mr    *miniredis.Miniredis
	after int
	calls *int
}

func clearErrorAfter(mr *miniredis.Miniredis, n int, calls *int) redis.Hook {
	return errorHook{mr: mr, after: n, calls: calls}
}

func (h errorHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h errorHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() == "rpush" {
			*h.calls++
			if *h.calls == h.after {
				h.mr.SetError("")
			}
		}
		return err
	}
}

func (h errorHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}
