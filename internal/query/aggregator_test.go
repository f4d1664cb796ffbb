package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

// TestResamplingBucketsAndAverages covers spec scenario 3: t in
// {0,200,...,1000} with v=t/200, downsampled at 1-second buckets with
// avg, yields two buckets: [(0, avg(0..4)), (1000, 5)].
func TestResamplingBucketsAndAverages(t *testing.T) {
	r, err := NewResampling("m", "avg", 1, "seconds")
	require.NoError(t, err)

	r.StartDatapointSet(keycodec.Tags{"a": "1"})
	for _, ts := range []int64{0, 200, 400, 600, 800, 1000} {
		require.NoError(t, r.AddDataPoint(ts, value.Dec(float64(ts)/200)))
	}
	require.NoError(t, r.EndDatapointSet())

	results, err := r.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 2)
	assert.Equal(t, int64(0), results[0].Values[0].Timestamp)
	v0, _ := results[0].Values[0].Value.Float64()
	assert.InDelta(t, 2.0, v0, 1e-9)
	assert.Equal(t, int64(1000), results[0].Values[1].Timestamp)
	v1, _ := results[0].Values[1].Value.Float64()
	assert.InDelta(t, 5.0, v1, 1e-9)
}

func TestResamplingRejectsReservedAggregator(t *testing.T) {
	_, err := NewResampling("m", "rate", 1, "seconds")
	assert.Error(t, err)
}

func TestResamplingRejectsUnknownUnit(t *testing.T) {
	_, err := NewResampling("m", "avg", 1, "fortnights")
	assert.Error(t, err)
}

// TestAggregatingSumsAlignedSeries covers spec scenario 4: series A =
// [1,2,3], series B = [3,2,1] at identical timestamps, aggregator sum ->
// [4,4,4].
func TestAggregatingSumsAlignedSeries(t *testing.T) {
	a, err := NewAggregating("m", "sum")
	require.NoError(t, err)

	times := []int64{0, 1000, 2000}

	a.StartDatapointSet(keycodec.Tags{"host": "a"})
	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, a.AddDataPoint(times[i], value.Dec(v)))
	}
	require.NoError(t, a.EndDatapointSet())

	a.StartDatapointSet(keycodec.Tags{"host": "b"})
	for i, v := range []float64{3, 2, 1} {
		require.NoError(t, a.AddDataPoint(times[i], value.Dec(v)))
	}
	require.NoError(t, a.EndDatapointSet())

	results, err := a.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 3)
	for _, dp := range results[0].Values {
		f, _ := dp.Value.Float64()
		assert.InDelta(t, 4.0, f, 1e-9)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, results[0].Tags["host"])
}

func TestAggregatingAvgDividesByCount(t *testing.T) {
	a, err := NewAggregating("m", "avg")
	require.NoError(t, err)

	a.StartDatapointSet(keycodec.Tags{"host": "a"})
	require.NoError(t, a.AddDataPoint(0, value.Dec(2)))
	require.NoError(t, a.EndDatapointSet())

	a.StartDatapointSet(keycodec.Tags{"host": "b"})
	require.NoError(t, a.AddDataPoint(0, value.Dec(4)))
	require.NoError(t, a.EndDatapointSet())

	results, err := a.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 1)
	f, _ := results[0].Values[0].Value.Float64()
	assert.InDelta(t, 3.0, f, 1e-9)
}

func TestComplexResamplesThenAggregates(t *testing.T) {
	c, err := NewComplex("m", "sum", "avg", 1, "seconds")
	require.NoError(t, err)

	c.StartDatapointSet(keycodec.Tags{"host": "a"})
	for _, ts := range []int64{0, 500} {
		require.NoError(t, c.AddDataPoint(ts, value.Dec(1)))
	}
	require.NoError(t, c.EndDatapointSet())

	c.StartDatapointSet(keycodec.Tags{"host": "b"})
	for _, ts := range []int64{0, 500} {
		require.NoError(t, c.AddDataPoint(ts, value.Dec(3)))
	}
	require.NoError(t, c.EndDatapointSet())

	results, err := c.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 1)
	f, _ := results[0].Values[0].Value.Float64()
	assert.InDelta(t, 4.0, f, 1e-9)
}
