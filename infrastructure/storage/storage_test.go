package storage

import (
	"chat-core/domain/event"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestIndex(t *testing.T) *SearchIndex {
	t.Helper()
	index, err := OpenSearchIndex("", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// capturePublisher records every committed change it is handed.
type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *capturePublisher) Publish(_ context.Context, e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturePublisher) published() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}
