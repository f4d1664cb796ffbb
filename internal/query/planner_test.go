package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amondawa/amondawa/internal/block"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

const testBlockSize = 1000

type fakeDatastore struct {
	keys []*keycodec.IndexKey
	rows map[string][]block.DatapointRow
}

func (f *fakeDatastore) QueryIndex(ctx context.Context, domain, metric string, start, end int64) ([]*keycodec.IndexKey, error) {
	return f.keys, nil
}

func (f *fakeDatastore) QueryDatapoints(ctx context.Context, k *keycodec.IndexKey, start, end int64) ([]block.DatapointRow, error) {
	return f.rows[k.RangeKey()], nil
}

func newIndexKey(domain, metric string, tbase int64, tags keycodec.Tags) *keycodec.IndexKey {
	hashKey := keycodec.IndexHashKey(domain, metric)
	rangeKey := keycodec.IndexRangeKey(tbase, tags, testBlockSize)
	return keycodec.NewIndexKey(hashKey, rangeKey)
}

func TestPlanGroupsByTagStringNewestBlockFirst(t *testing.T) {
	hostAOld := newIndexKey("d", "m", 1000, keycodec.Tags{"host": "a"})
	hostANew := newIndexKey("d", "m", 2000, keycodec.Tags{"host": "a"})
	hostB := newIndexKey("d", "m", 1000, keycodec.Tags{"host": "b"})

	ds := &fakeDatastore{
		// deliberately out of the expected gather order
		keys: []*keycodec.IndexKey{hostB, hostAOld, hostANew},
		rows: map[string][]block.DatapointRow{
			hostAOld.RangeKey(): {{Timestamp: 1000, Value: value.Int(1)}},
			hostANew.RangeKey(): {{Timestamp: 2000, Value: value.Int(2)}},
			hostB.RangeKey():    {{Timestamp: 1000, Value: value.Int(3)}},
		},
	}

	cb := NewSimple("m")
	require.NoError(t, Plan(context.Background(), ds, "d", "m", 0, 3000, keycodec.TagFilter{}, 4, cb))

	results, err := cb.Finish()
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"a"}, results[0].Tags["host"])
	require.Len(t, results[0].Values, 2)
	assert.Equal(t, int64(2000), results[0].Values[0].Timestamp)
	assert.Equal(t, int64(1000), results[0].Values[1].Timestamp)

	assert.Equal(t, []string{"b"}, results[1].Tags["host"])
	require.Len(t, results[1].Values, 1)
	assert.Equal(t, int64(1000), results[1].Values[0].Timestamp)
}

func TestPlanFiltersByTags(t *testing.T) {
	hostA := newIndexKey("d", "m", 1000, keycodec.Tags{"host": "a"})
	hostB := newIndexKey("d", "m", 1000, keycodec.Tags{"host": "b"})

	ds := &fakeDatastore{
		keys: []*keycodec.IndexKey{hostA, hostB},
		rows: map[string][]block.DatapointRow{
			hostA.RangeKey(): {{Timestamp: 1000, Value: value.Int(1)}},
			hostB.RangeKey(): {{Timestamp: 1000, Value: value.Int(2)}},
		},
	}

	cb := NewSimple("m")
	filter := keycodec.NewTagFilter(map[string][]string{"host": {"a"}})
	require.NoError(t, Plan(context.Background(), ds, "d", "m", 0, 3000, filter, 4, cb))

	results, err := cb.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"a"}, results[0].Tags["host"])
}

func TestPlanEmptyIndexYieldsEmptyResult(t *testing.T) {
	ds := &fakeDatastore{}
	cb := NewSimple("m")
	require.NoError(t, Plan(context.Background(), ds, "d", "m", 0, 3000, keycodec.TagFilter{}, 4, cb))
	results, err := cb.Finish()
	require.NoError(t, err)
	assert.Empty(t, results)
}
