// Package blockring implements the fixed-size ring of blocks covering the
// configured retention window, plus the periodic maintenance loop that
// rolls the ring forward, grounded on original_source's DatapointsSchema
// and MaintenanceWorker.
package blockring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/block"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/kvtable"
	"github.com/amondawa/amondawa/internal/lru"
	"github.com/amondawa/amondawa/internal/metrics"
	"github.com/amondawa/amondawa/internal/scheduledpool"
	"github.com/amondawa/amondawa/internal/value"
)

const (
	masterNAttr   = "n"
	masterTBase   = "tbase"
	masterState   = "state"
	masterDPName  = "data_points_name"
	masterIdxName = "index_name"
)

// maintenanceInterval is how often BlockRing evaluates whether to roll the
// ring forward, matching MaintenanceWorker's 5-second sleep loop.
const maintenanceInterval = 5 * time.Second

// Clock returns the current time in epoch milliseconds; tests substitute a
// deterministic clock.
type Clock func() int64

// Ring is the fixed-size array of blocks spanning the configured
// retention window.
type Ring struct {
	store  kvtable.Table
	cfg    *amdwconfig.Config
	pool   *scheduledpool.Pool
	logger log.Logger
	clock  Clock

	masterName string

	mu     sync.RWMutex
	blocks []*block.Block

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Bootstrap creates the master table and one initial row per ring slot,
// matching DatapointsSchema.create. It is idempotent: a master table that
// already holds rows is left untouched.
func Bootstrap(ctx context.Context, store kvtable.Table, cfg *amdwconfig.Config, now int64) error {
	masterName := cfg.TableName("dp_master")
	if err := store.Create(ctx, masterName,
		&kvtable.KeySchema{Name: masterNAttr, Type: kvtable.AttrNumber},
		&kvtable.KeySchema{Name: masterTBase, Type: kvtable.AttrNumber},
		kvtable.Throughput{Read: 5, Write: 5}); err != nil {
		return err
	}

	existing, err := store.Scan(ctx, masterName)
	if err != nil {
		return err
	}
	_, populated, err := existing.Next()
	existing.Close()
	if err != nil {
		return err
	}
	if populated {
		return nil
	}

	blockSize := cfg.BlockSize()
	blocks := cfg.Blocks()
	for i := int64(0); i < blocks; i++ {
		next := now + i*blockSize
		if err := store.PutItem(ctx, masterName, kvtable.Item{
			masterNAttr:   keycodec.BlockPos(next, blockSize, blocks),
			masterTBase:   keycodec.BaseTime(next, blockSize),
			masterState:   string(block.StateInitial),
			masterDPName:  "",
			masterIdxName: "",
		}, false); err != nil {
			return err
		}
	}
	return nil
}

// Open loads the master table's rows and constructs a Ring, binding each
// block to its existing tables if any.
func Open(ctx context.Context, store kvtable.Table, cfg *amdwconfig.Config, pool *scheduledpool.Pool, logger log.Logger, clock Clock) (*Ring, error) {
	masterName := cfg.TableName("dp_master")
	blocks := cfg.Blocks()

	rows := make([]block.Row, blocks)
	it, err := store.Scan(ctx, masterName)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for {
		item, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		n := toInt64(item[masterNAttr])
		if n < 0 || n >= blocks {
			continue
		}
		rows[n] = block.Row{
			N:              n,
			TBase:          toInt64(item[masterTBase]),
			State:          block.State(fmt.Sprint(item[masterState])),
			DataPointsName: fmt.Sprint(item[masterDPName]),
			IndexName:      fmt.Sprint(item[masterIdxName]),
		}
	}

	indexKeyCache := lru.NewSet[string](cfg.CacheWriteIndexKey)
	queryIndexCache := lru.NewMap[string, []*keycodec.IndexKey](cfg.CacheQueryIndexKey)
	queryDatapointsCache := lru.NewMap[string, []block.DatapointRow](cfg.CacheDatapoints)
	bs := make([]*block.Block, blocks)
	for n := int64(0); n < blocks; n++ {
		bs[n] = block.New(ctx, store, masterName, rows[n], cfg, pool, indexKeyCache, queryIndexCache, queryDatapointsCache, logger)
	}

	return &Ring{
		store:      store,
		cfg:        cfg,
		pool:       pool,
		logger:     logger,
		clock:      clock,
		masterName: masterName,
		blocks:     bs,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// StartMaintenance launches the periodic maintenance goroutine.
func (r *Ring) StartMaintenance() {
	go r.maintenanceLoop()
}

// StopMaintenance signals the maintenance goroutine to exit and waits for
// it to do so.
func (r *Ring) StopMaintenance() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Ring) maintenanceLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.PerformMaintenance(context.Background()); err != nil {
				metrics.MaintenanceErrors.Inc()
				level.Error(r.logger).Log("msg", "maintenance run failed", "err", err)
			} else {
				metrics.MaintenanceRuns.Inc()
			}
		}
	}
}

func (r *Ring) blockAt(pos int64) *block.Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blocks[pos]
}

// GetBlock returns the block covering t, or nil if that block's current
// tbase doesn't match t's (i.e. it hasn't been created for this window
// yet).
func (r *Ring) GetBlock(t int64) *block.Block {
	blockSize := r.cfg.BlockSize()
	pos := keycodec.BlockPos(t, blockSize, r.cfg.Blocks())
	b := r.blockAt(pos)
	if b.TBase() == keycodec.BaseTime(t, blockSize) {
		return b
	}
	return nil
}

func (r *Ring) now() int64 { return r.clock() }

// Current returns the block for the present moment, or nil if it hasn't
// been created yet.
func (r *Ring) Current() *block.Block { return r.GetBlock(r.now()) }

// Next returns the block for one block-width in the future, or nil.
func (r *Ring) Next() *block.Block { return r.GetBlock(r.now() + r.cfg.BlockSize()) }

// Previous returns the block for one block-width in the past, or nil.
func (r *Ring) Previous() *block.Block { return r.GetBlock(r.now() - r.cfg.BlockSize()) }

// CreateNext rebases the ring slot for "now + one block" onto that window
// and returns it (still needing CreateTables called to materialize its
// backend tables).
func (r *Ring) CreateNext(ctx context.Context) (*block.Block, error) {
	return r.createBlock(ctx, r.now()+r.cfg.BlockSize())
}

// CreateCurrent rebases the ring slot for "now" onto the present window.
func (r *Ring) CreateCurrent(ctx context.Context) (*block.Block, error) {
	return r.createBlock(ctx, r.now())
}

func (r *Ring) createBlock(ctx context.Context, timestamp int64) (*block.Block, error) {
	pos := keycodec.BlockPos(timestamp, r.cfg.BlockSize(), r.cfg.Blocks())
	b := r.blockAt(pos)
	if err := b.Replace(ctx, timestamp); err != nil {
		return nil, err
	}
	return b, nil
}

// PerformMaintenance runs one maintenance pass: create the next block if
// it's nearly due, turn down the previous block if it's sufficiently
// stale, and backfill the current block if it was never created.
func (r *Ring) PerformMaintenance(ctx context.Context) error {
	if r.shouldCreateNext(ctx) {
		next, err := r.CreateNext(ctx)
		if err != nil {
			return err
		}
		if _, err := next.CreateTables(ctx); err != nil {
			return err
		}
	}

	if r.shouldTurndownPrevious(ctx) {
		if err := r.Previous().TurndownTables(ctx); err != nil {
			return err
		}
	}

	current := r.Current()
	if current == nil || current.State(ctx) == block.StateInitial {
		created, err := r.CreateCurrent(ctx)
		if err != nil {
			return err
		}
		if _, err := created.CreateTables(ctx); err != nil {
			return err
		}
	}
	return nil
}

// timeExpired returns milliseconds elapsed since the current block's base
// time, and that as a percentage of block size.
func (r *Ring) timeExpired() (int64, float64) {
	now := r.now()
	blockSize := r.cfg.BlockSize()
	expired := now - keycodec.BaseTime(now, blockSize)
	return expired, 100 * float64(expired) / float64(blockSize)
}

// timeRemaining returns milliseconds until the next block's base time, and
// that as a percentage of block size.
func (r *Ring) timeRemaining() (int64, float64) {
	now := r.now()
	blockSize := r.cfg.BlockSize()
	remaining := keycodec.BaseTime(now, blockSize) + blockSize - now
	return remaining, 100 * float64(remaining) / float64(blockSize)
}

func (r *Ring) shouldCreateNext(ctx context.Context) bool {
	next := r.Next()
	if next != nil && next.State(ctx) == block.StateActive {
		return false
	}
	remaining, _ := r.timeRemaining()
	threshold := maxFloat(float64(60*1000*r.cfg.MXCreateNextMin), float64(r.cfg.BlockSize())*r.cfg.MXCreateNextPct/100)
	return float64(remaining) < threshold
}

func (r *Ring) shouldTurndownPrevious(ctx context.Context) bool {
	prev := r.Previous()
	if prev == nil || prev.State(ctx) != block.StateActive {
		return false
	}
	expired, _ := r.timeExpired()
	threshold := minFloat(float64(60*1000*r.cfg.MXTurndownMin), float64(r.cfg.BlockSize())*r.cfg.MXTurndownPct/100)
	return float64(expired) > threshold
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// StoreDatapoint routes a datapoint write to the block covering t, if that
// block has been created.
func (r *Ring) StoreDatapoint(ctx context.Context, domain, metric string, t int64, tags keycodec.Tags, v value.Value) error {
	b := r.GetBlock(t)
	if b == nil {
		metrics.DatapointsDropped.WithLabelValues("block_not_created").Inc()
		return nil
	}
	return b.StoreDatapoint(ctx, domain, metric, t, tags, v)
}

// QueryIndex returns every index key across all blocks overlapping [start,
// end] for (domain, metric), clamped to the ring's available history.
func (r *Ring) QueryIndex(ctx context.Context, domain, metric string, start, end int64) ([]*keycodec.IndexKey, error) {
	now := r.now()
	maxTime := now
	minTime := now - r.cfg.AvailableHistory()

	if start < minTime {
		start = minTime
	}
	if start > maxTime {
		start = maxTime
	}
	if end > maxTime {
		end = maxTime
	}
	if end < minTime {
		end = minTime
	}
	if start == end {
		return nil, nil
	}

	blockSize := r.cfg.BlockSize()
	var out []*keycodec.IndexKey
	seen := map[int64]bool{}
	for t := start; t <= end+blockSize; t += blockSize {
		b := r.GetBlock(t)
		if b == nil {
			continue
		}
		if seen[b.N()] {
			continue
		}
		seen[b.N()] = true
		keys, err := b.QueryIndex(ctx, domain, metric, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
	}
	return out, nil
}

// QueryDatapoints returns every datapoint row for indexKey within [start,
// end] in the block its tbase names.
func (r *Ring) QueryDatapoints(ctx context.Context, indexKey *keycodec.IndexKey, start, end int64) ([]block.DatapointRow, error) {
	b := r.GetBlock(indexKey.Tbase())
	if b == nil {
		return nil, nil
	}
	return b.QueryDatapoints(ctx, indexKey, start, end)
}
