package query

import (
	"context"
	"sort"

	"github.com/amondawa/amondawa/internal/block"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/metrics"
	"github.com/amondawa/amondawa/pkg/boundedwaitgroup"
)

// Datastore is the narrow slice of the storage facade the planner needs:
// an index lookup and a per-key datapoint range scan.
type Datastore interface {
	QueryIndex(ctx context.Context, domain, metric string, start, end int64) ([]*keycodec.IndexKey, error)
	QueryDatapoints(ctx context.Context, indexKey *keycodec.IndexKey, start, end int64) ([]block.DatapointRow, error)
}

// Plan runs one query: index scan, tag filter, a per-IndexKey fan-out
// bounded to maxReaders concurrent tasks, and an ordered gather into cb.
// Matching tasks preserve per-tagset reverse-chronological order by
// walking blocks newest-to-oldest within each tagString group (the
// bounded fan-out itself may complete out of order; gather re-imposes it
// from the results slice, indexed by task position, not arrival order).
func Plan(ctx context.Context, ds Datastore, domain, metric string, start, end int64, filter keycodec.TagFilter, maxReaders int, cb Callback) error {
	keys, err := ds.QueryIndex(ctx, domain, metric, start, end)
	if err != nil {
		return err
	}

	matched := make([]*keycodec.IndexKey, 0, len(keys))
	for _, k := range keys {
		if k.HasTags(filter) {
			matched = append(matched, k)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		si, sj := matched[i].TagString(), matched[j].TagString()
		if si != sj {
			return si < sj
		}
		return matched[i].Tbase() > matched[j].Tbase()
	})

	if maxReaders <= 0 {
		maxReaders = 1
	}
	metrics.QueryFanoutTasks.Set(float64(len(matched)))

	rows := make([][]block.DatapointRow, len(matched))
	errs := make([]error, len(matched))

	bwg := boundedwaitgroup.New(uint(maxReaders))
	for i, k := range matched {
		bwg.Add(1)
		go func(i int, k *keycodec.IndexKey) {
			defer bwg.Done()
			r, err := ds.QueryDatapoints(ctx, k, start, end)
			rows[i], errs[i] = r, err
		}(i, k)
	}
	bwg.Wait()

	var tagString string
	open := false
	for i, k := range matched {
		if errs[i] != nil {
			continue
		}
		if !open || k.TagString() != tagString {
			if open {
				if err := cb.EndDatapointSet(); err != nil {
					return err
				}
			}
			cb.StartDatapointSet(k.Tags())
			tagString = k.TagString()
			open = true
		}
		for _, row := range rows[i] {
			if err := cb.AddDataPoint(row.Timestamp, row.Value); err != nil {
				return err
			}
		}
	}
	if open {
		return cb.EndDatapointSet()
	}
	return nil
}
