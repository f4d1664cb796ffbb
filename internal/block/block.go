// Package block implements the per-ring-slot lifecycle state machine
// (INITIAL -> CREATING -> ACTIVE -> TURNED_DOWN, or UNDEFINED on a split
// brain between a slot's two tables), grounded on original_source's
// datapoints_schema.Block.
package block

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/batchwriter"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/kvtable"
	"github.com/amondawa/amondawa/internal/lru"
	"github.com/amondawa/amondawa/internal/metrics"
	"github.com/amondawa/amondawa/internal/scheduledpool"
	"github.com/amondawa/amondawa/internal/value"
)

// State is one of a block's lifecycle states.
type State string

const (
	StateInitial    State = "INITIAL"
	StateCreating   State = "CREATING"
	StateActive     State = "ACTIVE"
	StateTurnedDown State = "TURNED_DOWN"
	StateUndefined  State = "UNDEFINED"
)

// Datapoints table attribute names.
const (
	dpHashAttr  = "domain_metric_tbase_tags"
	dpRangeAttr = "toffset"
	dpValueAttr = "value"
	dpKindAttr  = "kind"
)

// Index table attribute names.
const (
	idxHashAttr  = "domain_metric"
	idxRangeAttr = "tbase_tags"
)

// Master table attribute names.
const (
	masterNAttr    = "n"
	masterTBase    = "tbase"
	masterState    = "state"
	masterDPName   = "data_points_name"
	masterIdxName  = "index_name"
)

// Block owns one ring slot's pair of tables (datapoints + index) and the
// master row describing them.
type Block struct {
	mu sync.RWMutex

	store  kvtable.Table
	pool   *scheduledpool.Pool
	cfg    *amdwconfig.Config
	logger log.Logger

	masterName string
	n          int64

	tbase          int64
	state          State
	dataPointsName string
	indexName      string
	bound          bool

	dpWriter *batchwriter.Writer

	indexKeyCache        *lru.Set[string]
	queryIndexCache      *lru.Map[string, []*keycodec.IndexKey]
	queryDatapointsCache *lru.Map[string, []DatapointRow]
}

// Row is the master table's persisted row shape for one block.
type Row struct {
	N              int64
	TBase          int64
	State          State
	DataPointsName string
	IndexName      string
}

// New constructs a Block for ring slot n from its current master row and
// attempts to bind to its tables. indexKeyCache dedups index-row writes;
// queryIndexCache and queryDatapointsCache are the read-through result
// caches for QueryIndex/QueryDatapoints (spec §2 C3, §6
// CACHE_QUERY_INDEX_KEY/CACHE_DATAPOINTS) — all three are shared across
// every block in the ring, the way Schema.index_key_lru/Schema.dp_lru are
// shared in the original rather than rebuilt per block.
func New(ctx context.Context, store kvtable.Table, masterName string, row Row, cfg *amdwconfig.Config, pool *scheduledpool.Pool, indexKeyCache *lru.Set[string], queryIndexCache *lru.Map[string, []*keycodec.IndexKey], queryDatapointsCache *lru.Map[string, []DatapointRow], logger log.Logger) *Block {
	b := &Block{
		store:                store,
		pool:                 pool,
		cfg:                  cfg,
		logger:               logger,
		masterName:           masterName,
		n:                    row.N,
		tbase:                row.TBase,
		state:                row.State,
		dataPointsName:       row.DataPointsName,
		indexName:            row.IndexName,
		indexKeyCache:        indexKeyCache,
		queryIndexCache:      queryIndexCache,
		queryDatapointsCache: queryDatapointsCache,
	}
	if err := b.bind(ctx); err != nil {
		level.Debug(logger).Log("msg", "block bind failed", "n", row.N, "err", err)
	}
	return b
}

// N is this block's ring slot index.
func (b *Block) N() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// TBase is this block's current base time.
func (b *Block) TBase() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tbase
}

// bind attaches to this block's existing tables (if named) and recomputes
// state from their live status, mirroring Block.bind in the original.
func (b *Block) bind(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindLocked(ctx)
}

func (b *Block) bindLocked(ctx context.Context) error {
	if b.dataPointsName == "" || b.indexName == "" {
		return nil
	}

	s1, _, err := b.store.Describe(ctx, b.dataPointsName)
	if err != nil {
		return amdwerr.New(amdwerr.BackendNotFound, "block.bind", err)
	}
	s2, _, err := b.store.Describe(ctx, b.indexName)
	if err != nil {
		return amdwerr.New(amdwerr.BackendNotFound, "block.bind", err)
	}

	b.bound = true
	b.dpWriter = batchwriter.New(b.store.BatchPutHandle(b.dataPointsName), b.pool, b.cfg.MTWriteDelay, b.logger)

	if s1 == s2 {
		b.state = stateFromStatus(s1)
	} else {
		b.state = StateUndefined
	}
	return nil
}

func stateFromStatus(s kvtable.TableStatus) State {
	switch s {
	case kvtable.StatusCreating:
		return StateCreating
	case kvtable.StatusActive:
		return StateActive
	default:
		return StateUndefined
	}
}

// State recomputes and returns this block's current lifecycle state. A
// block that has never been bound reports INITIAL without touching the
// backend, matching the original's shortcut for freshly-reset blocks.
func (b *Block) State(ctx context.Context) State {
	b.mu.RLock()
	state, bound := b.state, b.bound
	dp, idx := b.dataPointsName, b.indexName
	b.mu.RUnlock()

	if state == StateInitial || !bound {
		return StateInitial
	}

	s1, tp1, err := b.store.Describe(ctx, dp)
	if err != nil {
		return StateUndefined
	}
	s2, tp2, err := b.store.Describe(ctx, idx)
	if err != nil {
		return StateUndefined
	}

	calc1 := calcState(s1, tp1.Write)
	calc2 := calcState(s2, tp2.Write)
	if calc1 != calc2 {
		return StateUndefined
	}
	return calc1
}

// calcState reports TURNED_DOWN for an ACTIVE table pinned at write
// capacity 1, matching Block._calc_state in the original.
func calcState(s kvtable.TableStatus, writeCapacity int64) State {
	if s == kvtable.StatusActive && writeCapacity == 1 {
		return StateTurnedDown
	}
	return stateFromStatus(s)
}

// CreateTables creates this block's datapoints and index tables if they
// don't already exist, then persists the resulting master row.
func (b *Block) CreateTables(ctx context.Context) (State, error) {
	b.mu.Lock()
	if b.bound {
		state := b.state
		b.mu.Unlock()
		return state, nil
	}

	blocks := b.cfg.Blocks()
	tbase := b.tbase
	n := b.n
	dpName := fmt.Sprintf("%s_%d", b.cfg.TableName("dp"), tbase)
	idxName := fmt.Sprintf("%s_%d", b.cfg.TableName("dp_index"), tbase)
	b.dataPointsName = dpName
	b.indexName = idxName
	b.mu.Unlock()

	if err := b.store.Create(ctx, dpName, &kvtable.KeySchema{Name: dpHashAttr, Type: kvtable.AttrString}, &kvtable.KeySchema{Name: dpRangeAttr, Type: kvtable.AttrNumber}, kvtable.Throughput{
		Read:  divFloor(b.cfg.TPReadDatapoints, blocks),
		Write: b.cfg.TPWriteDatapoints,
	}); err != nil {
		return StateUndefined, amdwerr.New(amdwerr.BackendTransport, "block.CreateTables", err)
	}
	if err := b.store.Create(ctx, idxName, &kvtable.KeySchema{Name: idxHashAttr, Type: kvtable.AttrString}, &kvtable.KeySchema{Name: idxRangeAttr, Type: kvtable.AttrString}, kvtable.Throughput{
		Read:  divFloor(b.cfg.TPReadIndexKey, blocks),
		Write: b.cfg.TPWriteIndexKey,
	}); err != nil {
		return StateUndefined, amdwerr.New(amdwerr.BackendTransport, "block.CreateTables", err)
	}

	if err := b.bind(ctx); err != nil {
		return StateUndefined, err
	}

	b.mu.RLock()
	state := b.state
	b.mu.RUnlock()

	if err := b.saveRow(ctx, n, tbase, state); err != nil {
		return state, err
	}
	return state, nil
}

func divFloor(total int64, blocks int64) int64 {
	if blocks <= 0 {
		return total
	}
	r := total / blocks
	if r < 1 {
		r = 1
	}
	return r
}

// Replace rebases this block onto newTimestamp, deleting its current
// tables if the new time falls in a different base-time window.
func (b *Block) Replace(ctx context.Context, newTimestamp int64) error {
	blockSize := b.cfg.BlockSize()
	blocks := b.cfg.Blocks()
	pos := keycodec.BlockPos(newTimestamp, blockSize, blocks)

	b.mu.RLock()
	n, tbase := b.n, b.tbase
	b.mu.RUnlock()

	if pos != n {
		return amdwerr.New(amdwerr.ConfigInvalid, "block.Replace", fmt.Errorf("time %d (pos=%d) is not valid for block (pos=%d)", newTimestamp, pos, n))
	}
	if keycodec.BaseTime(newTimestamp, blockSize) == tbase {
		return nil
	}
	return b.DeleteTables(ctx, newTimestamp)
}

// DeleteTables drops this block's current tables and resets it to INITIAL
// at newTimestamp's base time (or its own current tbase if newTimestamp is
// zero).
func (b *Block) DeleteTables(ctx context.Context, newTimestamp int64) error {
	b.mu.Lock()
	dp, idx, n, tbase := b.dataPointsName, b.indexName, b.n, b.tbase
	if newTimestamp == 0 {
		newTimestamp = tbase
	}
	b.mu.Unlock()

	if dp != "" {
		if err := b.store.Delete(ctx, dp); err != nil {
			level.Debug(b.logger).Log("msg", "delete datapoints table failed", "table", dp, "err", err)
		}
	}
	if idx != "" {
		if err := b.store.Delete(ctx, idx); err != nil {
			level.Debug(b.logger).Log("msg", "delete index table failed", "table", idx, "err", err)
		}
	}
	if err := b.store.DeleteItem(ctx, b.masterName, kvtable.ItemKey{
		HashKeyName: masterNAttr, HashKey: n,
		RangeKeyName: masterTBase, RangeKey: tbase,
	}); err != nil {
		level.Debug(b.logger).Log("msg", "delete stale master row failed", "n", n, "tbase", tbase, "err", err)
	}

	newTBase := keycodec.BaseTime(newTimestamp, b.cfg.BlockSize())

	b.mu.Lock()
	b.dataPointsName = ""
	b.indexName = ""
	b.bound = false
	b.dpWriter = nil
	b.state = StateInitial
	b.tbase = newTBase
	b.mu.Unlock()

	return b.saveRow(ctx, n, newTBase, StateInitial)
}

// TurndownTables flushes pending writes and drops this block's write
// throughput to the floor, freeing capacity for the newly active block.
func (b *Block) TurndownTables(ctx context.Context) error {
	b.mu.Lock()
	writer := b.dpWriter
	b.dpWriter = nil
	dp, idx, n, tbase := b.dataPointsName, b.indexName, b.n, b.tbase
	b.mu.Unlock()

	if writer != nil {
		if err := writer.Flush(ctx); err != nil {
			level.Debug(b.logger).Log("msg", "turndown flush failed", "err", err)
		}
	}

	blocks := b.cfg.Blocks()
	if dp != "" {
		if err := b.store.UpdateThroughput(ctx, dp, kvtable.Throughput{Read: divFloor(b.cfg.TPReadDatapoints, blocks), Write: 1}); err != nil {
			level.Debug(b.logger).Log("msg", "turndown datapoints throughput failed", "err", err)
		}
	}
	if idx != "" {
		if err := b.store.UpdateThroughput(ctx, idx, kvtable.Throughput{Read: divFloor(b.cfg.TPReadIndexKey, blocks), Write: 1}); err != nil {
			level.Debug(b.logger).Log("msg", "turndown index throughput failed", "err", err)
		}
	}

	return b.saveRow(ctx, n, tbase, StateTurnedDown)
}

// StoreDatapoint writes one datapoint's index entry (deduped via the
// shared write-index-key LRU) and the datapoint row itself.
func (b *Block) StoreDatapoint(ctx context.Context, domain, metric string, t int64, tags keycodec.Tags, v value.Value) error {
	b.mu.RLock()
	writer := b.dpWriter
	idx := b.indexName
	b.mu.RUnlock()

	if writer == nil {
		metrics.DatapointsDropped.WithLabelValues("block_not_bound").Inc()
		return amdwerr.New(amdwerr.BackendNotFound, "block.StoreDatapoint", amdwerr.ErrTableNotActive)
	}

	blockSize := b.cfg.BlockSize()
	rowKey := keycodec.DatapointRowKey(domain, metric, t, tags, blockSize)

	if err := b.storeIndex(ctx, idx, rowKey, domain, metric, t, tags, blockSize); err != nil {
		return err
	}

	return writer.PutItem(ctx, kvtable.Item{
		dpHashAttr:  rowKey,
		dpRangeAttr: keycodec.OffsetTime(t, blockSize),
		dpValueAttr: v.Raw(),
		dpKindAttr:  v.Kind().String(),
	})
}

func (b *Block) storeIndex(ctx context.Context, indexName, dedupKey, domain, metric string, t int64, tags keycodec.Tags, blockSize int64) error {
	if b.indexKeyCache.Contains(dedupKey) {
		return nil
	}
	if err := b.store.PutItem(ctx, indexName, kvtable.Item{
		idxHashAttr:  keycodec.IndexHashKey(domain, metric),
		idxRangeAttr: keycodec.IndexRangeKey(t, tags, blockSize),
	}, true); err != nil {
		return amdwerr.New(amdwerr.BackendTransport, "block.storeIndex", err)
	}
	b.indexKeyCache.Add(dedupKey)
	return nil
}

// QueryIndex returns every index key in this block matching (domain,
// metric) whose tbase falls within [start, end]. Results are served from
// queryIndexCache when present, keyed on (indexHashKey, baseRange),
// matching Schema.query_index's read-through cache in the original.
func (b *Block) QueryIndex(ctx context.Context, domain, metric string, start, end int64) ([]*keycodec.IndexKey, error) {
	b.mu.RLock()
	idx := b.indexName
	b.mu.RUnlock()
	if idx == "" {
		return nil, nil
	}

	blockSize := b.cfg.BlockSize()
	hashKey := keycodec.IndexHashKey(domain, metric)
	startRange := fmt.Sprintf("%0*d|", keycodec.TbaseWidth, keycodec.BaseTime(start, blockSize))
	endRange := fmt.Sprintf("%0*d|~", keycodec.TbaseWidth, keycodec.BaseTime(end, blockSize)+1)

	cacheKey := hashKey + "|" + startRange + "|" + endRange
	if cached, ok := b.queryIndexCache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("query_index").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("query_index").Inc()

	it, err := b.store.Query(ctx, idx, kvtable.QueryInput{
		HashKeyName:  idxHashAttr,
		HashEq:       hashKey,
		RangeKeyName: idxRangeAttr,
		RangeBetween: &kvtable.RangeBetween{Start: startRange, End: endRange},
		Consistent:   false,
	})
	if err != nil {
		return nil, amdwerr.New(amdwerr.BackendTransport, "block.QueryIndex", err)
	}
	defer it.Close()

	var out []*keycodec.IndexKey
	for {
		item, ok, err := it.Next()
		if err != nil {
			return nil, amdwerr.New(amdwerr.BackendTransport, "block.QueryIndex", err)
		}
		if !ok {
			break
		}
		h, _ := item[idxHashAttr].(string)
		r, _ := item[idxRangeAttr].(string)
		out = append(out, keycodec.NewIndexKey(h, r))
	}
	b.queryIndexCache.Put(cacheKey, out)
	return out, nil
}

// QueryDatapoints returns every stored value for indexKey within [start,
// end], newest first, with the given projected attributes ("value" is
// always included). Results are served from queryDatapointsCache when
// present, keyed on (datapointRowKey, offsetRange), matching
// Schema.query_datapoints's read-through cache in the original.
func (b *Block) QueryDatapoints(ctx context.Context, indexKey *keycodec.IndexKey, start, end int64) ([]DatapointRow, error) {
	b.mu.RLock()
	dp := b.dataPointsName
	b.mu.RUnlock()
	if dp == "" {
		return nil, nil
	}

	blockSize := b.cfg.BlockSize()
	rowKey := indexKey.ToDatapointRowKey(blockSize)
	lo, hi := keycodec.OffsetRange(indexKey, start, end, blockSize)

	cacheKey := fmt.Sprintf("%s|%d|%d", rowKey, lo, hi)
	if cached, ok := b.queryDatapointsCache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("datapoints").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("datapoints").Inc()

	it, err := b.store.Query(ctx, dp, kvtable.QueryInput{
		HashKeyName:  dpHashAttr,
		HashEq:       rowKey,
		RangeKeyName: dpRangeAttr,
		RangeBetween: &kvtable.RangeBetween{Start: lo, End: hi},
		Attributes:   []string{dpRangeAttr, dpValueAttr, dpKindAttr},
		Consistent:   false,
		Reverse:      true,
	})
	if err != nil {
		return nil, amdwerr.New(amdwerr.BackendTransport, "block.QueryDatapoints", err)
	}
	defer it.Close()

	var out []DatapointRow
	for {
		item, ok, err := it.Next()
		if err != nil {
			return nil, amdwerr.New(amdwerr.BackendTransport, "block.QueryDatapoints", err)
		}
		if !ok {
			break
		}
		toffset := toInt64(item[dpRangeAttr])
		kind := value.ParseKind(fmt.Sprint(item[dpKindAttr]))
		out = append(out, DatapointRow{
			Timestamp: indexKey.Tbase() + toffset,
			Value:     value.FromKind(kind, item[dpValueAttr]),
		})
	}
	b.queryDatapointsCache.Put(cacheKey, out)
	return out, nil
}

// DatapointRow is one decoded (timestamp, value) pair read back from a
// block's datapoints table.
type DatapointRow struct {
	Timestamp int64
	Value     value.Value
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

func (b *Block) saveRow(ctx context.Context, n, tbase int64, state State) error {
	b.mu.Lock()
	dp, idx := b.dataPointsName, b.indexName
	b.state = state
	b.mu.Unlock()

	metrics.BlockState.WithLabelValues(fmt.Sprint(n)).Set(stateOrdinal(state))

	return b.store.PutItem(ctx, b.masterName, kvtable.Item{
		masterNAttr:   n,
		masterTBase:   tbase,
		masterState:   string(state),
		masterDPName:  dp,
		masterIdxName: idx,
	}, true)
}

func stateOrdinal(s State) float64 {
	switch s {
	case StateInitial:
		return 0
	case StateCreating:
		return 1
	case StateActive:
		return 2
	case StateTurnedDown:
		return 3
	default:
		return 4
	}
}

// Row returns this block's current master row, e.g. for BlockRing's
// maintenance loop to persist or inspect without reaching into Block's
// private fields.
func (b *Block) Row() Row {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Row{N: b.n, TBase: b.tbase, State: b.state, DataPointsName: b.dataPointsName, IndexName: b.indexName}
}
