package batchwriter

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amondawa/amondawa/internal/kvtable"
	"github.com/amondawa/amondawa/internal/kvtable/memkv"
	"github.com/amondawa/amondawa/internal/scheduledpool"
)

func newTestTable(t *testing.T) (*memkv.Store, string) {
	t.Helper()
	store := memkv.New()
	name := "dp_table"
	require.NoError(t, store.Create(context.Background(), name,
		&kvtable.KeySchema{Name: "hash", Type: kvtable.AttrString},
		&kvtable.KeySchema{Name: "range", Type: kvtable.AttrString},
		kvtable.Throughput{Read: 10, Write: 10}))
	return store, name
}

func TestPutItemFlushesAfterDelay(t *testing.T) {
	store, name := newTestTable(t)
	pool := scheduledpool.New(2, 8)
	defer pool.Shutdown()

	w := New(store.BatchPutHandle(name), pool, 30*time.Millisecond, log.NewNopLogger())
	require.NoError(t, w.PutItem(context.Background(), kvtable.Item{"hash": "h1", "range": "r1"}))

	time.Sleep(100 * time.Millisecond)

	it, err := store.Scan(context.Background(), name)
	require.NoError(t, err)
	item, ok, err := it.Next()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "h1", item["hash"])
}

func TestPutItemResetsTimerOnEachWrite(t *testing.T) {
	store, name := newTestTable(t)
	pool := scheduledpool.New(2, 8)
	defer pool.Shutdown()

	w := New(store.BatchPutHandle(name), pool, 40*time.Millisecond, log.NewNopLogger())
	for i := 0; i < 3; i++ {
		require.NoError(t, w.PutItem(context.Background(), kvtable.Item{"hash": "h", "range": i}))
		time.Sleep(15 * time.Millisecond)
	}

	// flush timer should not have fired yet since each write reset it
	it, err := store.Scan(context.Background(), name)
	require.NoError(t, err)
	_, ok, err := it.Next()
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	it, err = store.Scan(context.Background(), name)
	require.NoError(t, err)
	_, ok, err = it.Next()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestForcedFlush(t *testing.T) {
	store, name := newTestTable(t)
	pool := scheduledpool.New(2, 8)
	defer pool.Shutdown()

	w := New(store.BatchPutHandle(name), pool, time.Hour, log.NewNopLogger())
	require.NoError(t, w.PutItem(context.Background(), kvtable.Item{"hash": "h1", "range": "r1"}))
	require.NoError(t, w.Flush(context.Background()))

	it, err := store.Scan(context.Background(), name)
	require.NoError(t, err)
	_, ok, err := it.Next()
	require.NoError(t, err)
	assert.True(t, ok)
}
