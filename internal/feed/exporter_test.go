package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

type memoryStorage struct {
	data  []byte
	calls int
	err   error
}

func (m *memoryStorage) Store(ctx context.Context, r io.ReadSeeker) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	m.data = data
	return err
}

func TestExporterWritesJSONLines(t *testing.T) {
	store := &memoryStorage{}
	exp, err := NewExporter(store, false)
	require.NoError(t, err)

	items := []shared.Item{
		{ID: "1", URL: "http://example.com/a", Status: 200},
		{ID: "2", URL: "http://example.com/b", Status: 200, Title: "B"},
	}
	for _, item := range items {
		require.NoError(t, exp.Process(context.Background(), item))
	}
	assert.Equal(t, 2, exp.Count())

	tmp := exp.file.Name()
	require.NoError(t, exp.Close(context.Background()))
	assert.Equal(t, 1, store.calls)

	_, statErr := os.Stat(tmp)
	assert.True(t, os.IsNotExist(statErr), "temporary feed file should be removed")

	var got []shared.Item
	scanner := bufio.NewScanner(bytes.NewReader(store.data))
	for scanner.Scan() {
		var item shared.Item
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &item))
		got = append(got, item)
	}
	assert.Equal(t, items, got)

	assert.Error(t, exp.Process(context.Background(), items[0]))
	assert.NoError(t, exp.Close(context.Background()), "second close is a no-op")
}

func TestExporterSkipsEmptyFeed(t *testing.T) {
	store := &memoryStorage{}
	exp, err := NewExporter(store, false)
	require.NoError(t, err)
	require.NoError(t, exp.Close(context.Background()))
	assert.Equal(t, 0, store.calls)

	exp, err = NewExporter(store, true)
	require.NoError(t, err)
	require.NoError(t, exp.Close(context.Background()))
	assert.Equal(t, 1, store.calls)
}

func TestExporterStoreError(t *testing.T) {
	boom := errors.New("upload failed")
	exp, err := NewExporter(&memoryStorage{err: boom}, false)
	require.NoError(t, err)
	require.NoError(t, exp.Process(context.Background(), shared.Item{URL: "http://example.com"}))

	assert.ErrorIs(t, exp.Close(context.Background()), boom)
}

func TestExporterToFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.jsonl")
	store, err := NewFileStorage(path)
	require.NoError(t, err)

	exp, err := NewExporter(store, false)
	require.NoError(t, err)
	require.NoError(t, exp.Process(context.Background(), shared.Item{URL: "http://example.com"}))
	require.NoError(t, exp.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"url":"http://example.com"`)
}
