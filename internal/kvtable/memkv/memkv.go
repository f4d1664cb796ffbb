// Package memkv is an in-process implementation of kvtable.Table backed
// by sorted in-memory slices. It exists for tests and local development,
// the way the teacher pack's local backend stands in for a hosted object
// store.
package memkv

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/kvtable"
)

type row struct {
	hash  interface{}
	rng   interface{}
	item  kvtable.Item
}

type table struct {
	hashKey *kvtable.KeySchema
	rangeKey *kvtable.KeySchema
	status  kvtable.TableStatus
	tp      kvtable.Throughput

	mu   sync.RWMutex
	rows []row
}

// Store is the in-memory database; one Store can host many named tables,
// mirroring a single DynamoDB account/region.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
}

func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) Create(_ context.Context, name string, hashKey, rangeKey *kvtable.KeySchema, tp kvtable.Throughput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return nil // idempotent create, matches hosted-store semantics used by Block.bind/create
	}
	s.tables[name] = &table{
		hashKey:  hashKey,
		rangeKey: rangeKey,
		status:   kvtable.StatusActive,
		tp:       tp,
	}
	return nil
}

func (s *Store) Describe(_ context.Context, name string) (kvtable.TableStatus, kvtable.Throughput, error) {
	t, err := s.get(name)
	if err != nil {
		return "", kvtable.Throughput{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.tp, nil
}

func (s *Store) UpdateThroughput(_ context.Context, name string, tp kvtable.Throughput) error {
	t, err := s.get(name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tp = tp
	return nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		return amdwerr.New(amdwerr.BackendNotFound, "memkv.Delete", amdwerr.ErrTableNotFound)
	}
	delete(s.tables, name)
	return nil
}

func (s *Store) PutItem(_ context.Context, name string, item kvtable.Item, overwrite bool) error {
	t, err := s.get(name)
	if err != nil {
		return err
	}
	return t.put(item, overwrite)
}

func (s *Store) DeleteItem(_ context.Context, name string, key kvtable.ItemKey) error {
	t, err := s.get(name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if equalKey(t.rows[i].hash, key.HashKey) && equalKey(t.rows[i].rng, key.RangeKey) {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) BatchPutHandle(name string) kvtable.BatchHandle {
	return &batchHandle{store: s, name: name}
}

func (s *Store) Query(_ context.Context, name string, in kvtable.QueryInput) (kvtable.Iterator, error) {
	t, err := s.get(name)
	if err != nil {
		return nil, err
	}
	return t.query(in)
}

func (s *Store) Scan(_ context.Context, name string) (kvtable.Iterator, error) {
	t, err := s.get(name)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	items := make([]kvtable.Item, len(t.rows))
	for i, r := range t.rows {
		items[i] = r.item
	}
	return &sliceIterator{items: items}, nil
}

func (s *Store) get(name string) (*table, error) {
	s.mu.Lock()
	t, ok := s.tables[name]
	s.mu.Unlock()
	if !ok {
		return nil, amdwerr.New(amdwerr.BackendNotFound, "memkv", amdwerr.ErrTableNotFound)
	}
	t.mu.RLock()
	status := t.status
	t.mu.RUnlock()
	if status != kvtable.StatusActive {
		return nil, amdwerr.New(amdwerr.BackendNotFound, "memkv", amdwerr.ErrTableNotActive)
	}
	return t, nil
}

func (t *table) put(item kvtable.Item, overwrite bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := item[t.hashKey.Name]
	var r interface{}
	if t.rangeKey != nil {
		r = item[t.rangeKey.Name]
	}

	for i := range t.rows {
		if equalKey(t.rows[i].hash, h) && equalKey(t.rows[i].rng, r) {
			if !overwrite {
				return amdwerr.New(amdwerr.BackendTransport, "memkv.PutItem", amdwerr.ErrConflict)
			}
			t.rows[i].item = item
			return nil
		}
	}

	t.rows = append(t.rows, row{hash: h, rng: r, item: item})
	sort.Slice(t.rows, func(i, j int) bool {
		if !equalKey(t.rows[i].hash, t.rows[j].hash) {
			return lessKey(t.rows[i].hash, t.rows[j].hash)
		}
		return lessKey(t.rows[i].rng, t.rows[j].rng)
	})
	return nil
}

func (t *table) query(in kvtable.QueryInput) (kvtable.Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var matched []kvtable.Item
	for _, r := range t.rows {
		if !equalKey(r.hash, in.HashEq) {
			continue
		}
		if in.RangeBetween != nil && !between(r.rng, in.RangeBetween.Start, in.RangeBetween.End) {
			continue
		}
		matched = append(matched, project(r.item, in.Attributes))
	}

	if in.Reverse {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	return &sliceIterator{items: matched}, nil
}

func project(item kvtable.Item, attrs []string) kvtable.Item {
	if attrs == nil {
		out := make(kvtable.Item, len(item))
		for k, v := range item {
			out[k] = v
		}
		return out
	}
	out := make(kvtable.Item, len(attrs))
	for _, a := range attrs {
		if v, ok := item[a]; ok {
			out[a] = v
		}
	}
	return out
}

func equalKey(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func lessKey(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func between(v, lo, hi interface{}) bool {
	vf, vok := toFloat(v)
	lf, lok := toFloat(lo)
	hf, hok := toFloat(hi)
	if vok && lok && hok {
		return vf >= lf && vf <= hf
	}
	vs, ls, hs := fmt.Sprint(v), fmt.Sprint(lo), fmt.Sprint(hi)
	return vs >= ls && vs <= hs
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

type sliceIterator struct {
	items []kvtable.Item
	pos   int
}

func (it *sliceIterator) Next() (kvtable.Item, bool, error) {
	if it.pos >= len(it.items) {
		return nil, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	return item, true, nil
}

func (it *sliceIterator) Close() error { return nil }

type batchHandle struct {
	store *Store
	name  string

	mu    sync.Mutex
	items []kvtable.Item
}

func (b *batchHandle) Put(item kvtable.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	return nil
}

func (b *batchHandle) Flush(ctx context.Context) error {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()

	for _, item := range items {
		if err := b.store.PutItem(ctx, b.name, item, true); err != nil {
			return err
		}
	}
	return nil
}
