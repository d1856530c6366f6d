package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

// Exporter writes items as JSON lines to a temporary file and hands the file
// to its Storage on Close.
type Exporter struct {
	mu         sync.Mutex
	storage    Storage
	file       *os.File
	enc        *json.Encoder
	count      int
	storeEmpty bool
	closed     bool
}

func NewExporter(storage Storage, storeEmpty bool) (*Exporter, error) {
	f, err := os.CreateTemp("", "feed-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("create feed buffer: %w", err)
	}

	return &Exporter{
		storage:    storage,
		file:       f,
		enc:        json.NewEncoder(f),
		storeEmpty: storeEmpty,
	}, nil
}

func (e *Exporter) Process(ctx context.Context, item shared.Item) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("feed exporter closed")
	}
	if err := e.enc.Encode(item); err != nil {
		return fmt.Errorf("write feed item: %w", err)
	}
	e.count++
	return nil
}

func (e *Exporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Close stores the feed and removes the temporary file.
func (e *Exporter) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	defer func() {
		e.file.Close()
		os.Remove(e.file.Name())
	}()

	if e.count == 0 && !e.storeEmpty {
		log.Info().Msg("No items scraped, skipping feed upload")
		return nil
	}

	if err := e.storage.Store(ctx, e.file); err != nil {
		return err
	}
	log.Info().Int("items", e.count).Msg("Feed stored")
	return nil
}
