package keycodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = int64(60000)

func TestBaseTimeOffsetRoundTrip(t *testing.T) {
	for _, ts := range []int64{0, 1, 59999, 60000, 60001, 123456789, -5000} {
		base := BaseTime(ts, testBlockSize)
		off := OffsetTime(ts, testBlockSize)
		assert.Equal(t, ts, base+off, "ts=%d", ts)
		assert.True(t, off >= 0 && off < testBlockSize, "ts=%d off=%d", ts, off)
	}
}

func TestBlockPosWrapsAcrossRings(t *testing.T) {
	blocks := int64(4)
	for _, ts := range []int64{0, 60000, 123456789} {
		p1 := BlockPos(ts, testBlockSize, blocks)
		p2 := BlockPos(ts+3*blocks*testBlockSize, testBlockSize, blocks)
		assert.Equal(t, p1, p2)
	}
}

func TestTagStringRoundTrip(t *testing.T) {
	tags := Tags{"b": "2", "a": "1", "c": "3"}
	s := TagString(tags)
	assert.Equal(t, "a=1;b=2;c=3", s)
	assert.Equal(t, tags, ParseTagString(s))
}

func TestTagStringEmpty(t *testing.T) {
	assert.Equal(t, "", TagString(Tags{}))
	assert.Equal(t, Tags{}, ParseTagString(""))
}

func TestIndexKeyRoundTripToDatapointRowKey(t *testing.T) {
	domain, metric := "d", "m"
	tags := Tags{"a": "1"}
	ts := int64(10_000)

	want := DatapointRowKey(domain, metric, ts, tags, testBlockSize)

	ik := NewIndexKey(IndexHashKey(domain, metric), IndexRangeKey(ts, tags, testBlockSize))
	got := ik.ToDatapointRowKey(testBlockSize)

	assert.Equal(t, want, got)
	assert.Equal(t, domain, ik.Domain())
	assert.Equal(t, metric, ik.Metric())
	assert.Equal(t, BaseTime(ts, testBlockSize), ik.Tbase())
}

func TestHasTags(t *testing.T) {
	ik := NewIndexKey(IndexHashKey("d", "m"), IndexRangeKey(0, Tags{"a": "1", "b": "2"}, testBlockSize))

	assert.True(t, ik.HasTags(NewTagFilter(nil)))
	assert.True(t, ik.HasTags(NewTagFilter(map[string][]string{"a": {"1"}})))
	assert.True(t, ik.HasTags(NewTagFilter(map[string][]string{"a": {"0", "1"}})))
	assert.False(t, ik.HasTags(NewTagFilter(map[string][]string{"a": {"2"}})))
	assert.False(t, ik.HasTags(NewTagFilter(map[string][]string{"c": {"1"}})))
}

func TestOffsetRange(t *testing.T) {
	tags := Tags{}
	tbase := int64(60000)
	ik := NewIndexKey(IndexHashKey("d", "m"), IndexRangeKey(tbase, tags, testBlockSize))

	a, b := OffsetRange(ik, tbase-1000, tbase+70000, testBlockSize)
	require.Equal(t, int64(0), a)
	require.Equal(t, testBlockSize, b)

	a, b = OffsetRange(ik, tbase+100, tbase+200, testBlockSize)
	require.Equal(t, int64(100), a)
	require.Equal(t, int64(200), b)
}

func TestMalformedKeyDecodeError(t *testing.T) {
	ik := NewIndexKey("nopipe", "alsonopipe")
	assert.Panics(t, func() { ik.Tbase() })
}
