package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/block"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

type fakeSchema struct {
	stored []storedPoint
	names  []string
	keys   []*keycodec.IndexKey
	rows   map[string][]block.DatapointRow
}

type storedPoint struct {
	domain, metric string
	t              int64
	tags           keycodec.Tags
	v              value.Value
}

func (f *fakeSchema) StoreDatapoint(ctx context.Context, domain, metric string, t int64, tags keycodec.Tags, v value.Value) error {
	f.stored = append(f.stored, storedPoint{domain, metric, t, tags, v})
	return nil
}

func (f *fakeSchema) MetricNames(ctx context.Context, domain string) ([]string, error) { return f.names, nil }
func (f *fakeSchema) TagNames(ctx context.Context, domain string) ([]string, error)     { return f.names, nil }
func (f *fakeSchema) TagValues(ctx context.Context, domain string) ([]string, error)    { return f.names, nil }

func (f *fakeSchema) QueryIndex(ctx context.Context, domain, metric string, start, end int64) ([]*keycodec.IndexKey, error) {
	return f.keys, nil
}

func (f *fakeSchema) QueryDatapoints(ctx context.Context, k *keycodec.IndexKey, start, end int64) ([]block.DatapointRow, error) {
	return f.rows[k.RangeKey()], nil
}

func TestPutDataPointsStoresEachPoint(t *testing.T) {
	fs := &fakeSchema{}
	ds := Open(fs, amdwconfig.Defaults())

	tags := keycodec.Tags{"host": "a"}
	require.NoError(t, ds.PutDataPoints(context.Background(), "dom", "cpu", tags, []DataPoint{
		{Timestamp: 1, Value: value.Int(1)},
		{Timestamp: 2, Value: value.Int(2)},
	}))

	require.Len(t, fs.stored, 2)
	assert.Equal(t, "dom", fs.stored[0].domain)
	assert.Equal(t, "cpu", fs.stored[0].metric)
	assert.Equal(t, tags, fs.stored[0].tags)
}

func TestQuerySimpleByDefault(t *testing.T) {
	k := keycodec.NewIndexKey(keycodec.IndexHashKey("dom", "cpu"), keycodec.IndexRangeKey(1000, keycodec.Tags{"host": "a"}, 1000))
	fs := &fakeSchema{
		keys: []*keycodec.IndexKey{k},
		rows: map[string][]block.DatapointRow{
			k.RangeKey(): {{Timestamp: 1000, Value: value.Int(42)}},
		},
	}
	ds := Open(fs, amdwconfig.Defaults())

	results, err := ds.Query(context.Background(), QueryRequest{
		Domain: "dom", Metric: "cpu", Start: 0, End: 2000,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"a"}, results[0].Tags["host"])
	require.Len(t, results[0].Values, 1)
	assert.Equal(t, int64(1000), results[0].Values[0].Timestamp)
}

func TestQueryWithAggregatorAndDownsampleUsesComplex(t *testing.T) {
	k1 := keycodec.NewIndexKey(keycodec.IndexHashKey("dom", "cpu"), keycodec.IndexRangeKey(0, keycodec.Tags{"host": "a"}, 1000))
	k2 := keycodec.NewIndexKey(keycodec.IndexHashKey("dom", "cpu"), keycodec.IndexRangeKey(0, keycodec.Tags{"host": "b"}, 1000))
	fs := &fakeSchema{
		keys: []*keycodec.IndexKey{k1, k2},
		rows: map[string][]block.DatapointRow{
			k1.RangeKey(): {{Timestamp: 0, Value: value.Dec(1)}},
			k2.RangeKey(): {{Timestamp: 0, Value: value.Dec(3)}},
		},
	}
	ds := Open(fs, amdwconfig.Defaults())

	results, err := ds.Query(context.Background(), QueryRequest{
		Domain: "dom", Metric: "cpu", Start: 0, End: 2000,
		Aggregator: &AggregatorSpec{How: "sum"},
		Downsample: &DownsampleSpec{How: "avg", Amount: 1, Unit: "seconds"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 1)
	f, _ := results[0].Values[0].Value.Float64()
	assert.InDelta(t, 4.0, f, 1e-9)
}

func TestQueryMetricTagsUnionsWithoutReadingDatapoints(t *testing.T) {
	k1 := keycodec.NewIndexKey(keycodec.IndexHashKey("dom", "cpu"), keycodec.IndexRangeKey(0, keycodec.Tags{"host": "a"}, 1000))
	k2 := keycodec.NewIndexKey(keycodec.IndexHashKey("dom", "cpu"), keycodec.IndexRangeKey(0, keycodec.Tags{"host": "b"}, 1000))
	fs := &fakeSchema{keys: []*keycodec.IndexKey{k1, k2}}
	ds := Open(fs, amdwconfig.Defaults())

	tags, err := ds.QueryMetricTags(context.Background(), "dom", "cpu", 0, 2000, keycodec.TagFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, tags["host"])
}
