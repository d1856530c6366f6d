package middleware

import (
	"context"
	"errors"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

type Action int

const (
	// Complete hands the response on to the item pipelines.
	Complete Action = iota
	// Resubmit sends Outcome.Request back to the frontier instead.
	Resubmit
)

func (a Action) String() string {
	if a == Resubmit {
		return "resubmit"
	}
	return "complete"
}

// ErrResubmitted is returned by callers that fetch outside the frontier when
// a middleware asked for the request to be sent again.
var ErrResubmitted = errors.New("middleware: request resubmitted")

type Outcome struct {
	Action  Action
	Request *shared.Request
}

// Downloader hooks run around every fetch.
type Downloader interface {
	ProcessRequest(ctx context.Context, req *shared.Request) error
	ProcessResponse(ctx context.Context, req *shared.Request, resp shared.FetchResult) (Outcome, error)
}

// Chain runs requests through middlewares in order and responses in reverse
// order, stopping at the first one that asks for a resubmit.
type Chain []Downloader

func (c Chain) ProcessRequest(ctx context.Context, req *shared.Request) error {
	for _, m := range c {
		if err := m.ProcessRequest(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) ProcessResponse(ctx context.Context, req *shared.Request, resp shared.FetchResult) (Outcome, error) {
	for i := len(c) - 1; i >= 0; i-- {
		out, err := c[i].ProcessResponse(ctx, req, resp)
		if err != nil {
			return Outcome{}, err
		}
		if out.Action == Resubmit {
			return out, nil
		}
	}
	return Outcome{Action: Complete}, nil
}
