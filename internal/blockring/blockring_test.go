package blockring

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/block"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/kvtable/memkv"
	"github.com/amondawa/amondawa/internal/scheduledpool"
	"github.com/amondawa/amondawa/internal/value"
)

func testConfig() *amdwconfig.Config {
	cfg := amdwconfig.Defaults()
	cfg.StoreHistory = 3000 // 3 blocks of 1000ms
	cfg.StoreHistoryBlocks = 3
	return cfg
}

func TestBootstrapAndOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cfg := testConfig()
	pool := scheduledpool.New(2, 8)
	defer pool.Shutdown()

	require.NoError(t, Bootstrap(ctx, store, cfg, 10_000))

	clock := func() int64 { return 10_000 }
	ring, err := Open(ctx, store, cfg, pool, log.NewNopLogger(), clock)
	require.NoError(t, err)

	require.NoError(t, ring.PerformMaintenance(ctx))

	current := ring.Current()
	require.NotNil(t, current)
	assert.Equal(t, block.StateActive, current.State(ctx))
}

func TestStoreAndQueryDatapoint(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cfg := testConfig()
	pool := scheduledpool.New(2, 8)
	defer pool.Shutdown()

	now := int64(10_000)
	require.NoError(t, Bootstrap(ctx, store, cfg, now))

	clock := func() int64 { return now }
	ring, err := Open(ctx, store, cfg, pool, log.NewNopLogger(), clock)
	require.NoError(t, err)
	require.NoError(t, ring.PerformMaintenance(ctx))

	tags := keycodec.Tags{"host": "a"}
	require.NoError(t, ring.StoreDatapoint(ctx, "dom", "metric", now, tags, value.Int(42)))

	keys, err := ring.QueryIndex(ctx, "dom", "metric", now-1000, now+1000)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "dom", keys[0].Domain())
	assert.Equal(t, "metric", keys[0].Metric())
}

func TestCreateNextRollsForward(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cfg := testConfig()
	pool := scheduledpool.New(2, 8)
	defer pool.Shutdown()

	now := int64(10_000)
	require.NoError(t, Bootstrap(ctx, store, cfg, now))

	clock := func() int64 { return now }
	ring, err := Open(ctx, store, cfg, pool, log.NewNopLogger(), clock)
	require.NoError(t, err)
	require.NoError(t, ring.PerformMaintenance(ctx))

	next, err := ring.CreateNext(ctx)
	require.NoError(t, err)
	_, err = next.CreateTables(ctx)
	require.NoError(t, err)

	got := ring.GetBlock(now + cfg.BlockSize())
	require.NotNil(t, got)
	assert.Equal(t, block.StateActive, got.State(ctx))
}
