package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amondawa/amondawa/internal/kvtable"
)

func newTable(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Create(context.Background(), "t",
		&kvtable.KeySchema{Name: "h", Type: kvtable.AttrString},
		&kvtable.KeySchema{Name: "r", Type: kvtable.AttrNumber},
		kvtable.Throughput{Read: 5, Write: 5}))
	return s
}

func TestPutItemAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTable(t)

	require.NoError(t, s.PutItem(ctx, "t", kvtable.Item{"h": "a", "r": int64(1), "v": "x"}, true))
	require.NoError(t, s.PutItem(ctx, "t", kvtable.Item{"h": "a", "r": int64(2), "v": "y"}, true))
	require.NoError(t, s.PutItem(ctx, "t", kvtable.Item{"h": "b", "r": int64(1), "v": "z"}, true))

	it, err := s.Query(ctx, "t", kvtable.QueryInput{
		HashKeyName: "h", HashEq: "a",
		RangeKeyName: "r", RangeBetween: &kvtable.RangeBetween{Start: int64(0), End: int64(5)},
	})
	require.NoError(t, err)

	var got []string
	for {
		item, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, item["v"].(string))
	}
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestPutItemRejectsConflictWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTable(t)

	require.NoError(t, s.PutItem(ctx, "t", kvtable.Item{"h": "a", "r": int64(1)}, true))
	assert.Error(t, s.PutItem(ctx, "t", kvtable.Item{"h": "a", "r": int64(1)}, false))
}

func TestDeleteItemRemovesRow(t *testing.T) {
	ctx := context.Background()
	s := newTable(t)

	require.NoError(t, s.PutItem(ctx, "t", kvtable.Item{"h": "a", "r": int64(1)}, true))
	require.NoError(t, s.DeleteItem(ctx, "t", kvtable.ItemKey{HashKeyName: "h", HashKey: "a", RangeKeyName: "r", RangeKey: int64(1)}))

	it, err := s.Scan(ctx, "t")
	require.NoError(t, err)
	_, ok, err := it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryReverse(t *testing.T) {
	ctx := context.Background()
	s := newTable(t)
	require.NoError(t, s.PutItem(ctx, "t", kvtable.Item{"h": "a", "r": int64(1)}, true))
	require.NoError(t, s.PutItem(ctx, "t", kvtable.Item{"h": "a", "r": int64(2)}, true))

	it, err := s.Query(ctx, "t", kvtable.QueryInput{HashKeyName: "h", HashEq: "a", Reverse: true})
	require.NoError(t, err)
	first, _, _ := it.Next()
	assert.Equal(t, int64(2), first["r"])
}

func TestDeleteTableThenGetFails(t *testing.T) {
	ctx := context.Background()
	s := newTable(t)
	require.NoError(t, s.Delete(ctx, "t"))
	_, err := s.Scan(ctx, "t")
	assert.Error(t, err)
}
