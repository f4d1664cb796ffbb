package query

import (
	"fmt"
	"math"
	"sort"

	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/value"
)

// AggregatorFunc reduces a set of values (a resample bucket, or a pair of
// aligned cross-series points) to one.
type AggregatorFunc func(values []float64) float64

func mean(values []float64) float64 {
	return sumValues(values) / float64(len(values))
}

func sumValues(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func stddev(values []float64) float64 {
	m := mean(values)
	var acc float64
	for _, v := range values {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// aggregators is AGGREGATORS restricted to the names the original actually
// implements (avg, dev, max, min, sum); div/histogram/least_squares/rate
// are recognized names with no implementation there either.
var aggregators = map[string]AggregatorFunc{
	"avg": mean,
	"dev": stddev,
	"max": maxOf,
	"min": minOf,
	"sum": sumValues,
}

var reservedAggregators = map[string]struct{}{
	"div": {}, "histogram": {}, "least_squares": {}, "rate": {},
}

func lookupAggregator(how string) (AggregatorFunc, error) {
	if fn, ok := aggregators[how]; ok {
		return fn, nil
	}
	if _, ok := reservedAggregators[how]; ok {
		return nil, amdwerr.New(amdwerr.UnsupportedAggregator, "query.lookupAggregator", fmt.Errorf("aggregator %q is reserved and not implemented", how))
	}
	return nil, amdwerr.New(amdwerr.UnsupportedAggregator, "query.lookupAggregator", fmt.Errorf("unknown aggregator %q", how))
}

// unitMillis mirrors FREQ_MILLIS: the millisecond width of one unit of
// each resample granularity. months/years are fixed 30/365-day windows,
// not calendar-aware, matching FREQ_MILLIS rather than pandas' separate
// (calendar-aware) FREQ_TYPE table.
var unitMillis = map[string]int64{
	"milliseconds": 1,
	"seconds":      1000,
	"minutes":      1000 * 60,
	"hours":        1000 * 60 * 60,
	"days":         1000 * 60 * 60 * 24,
	"weeks":        1000 * 60 * 60 * 24 * 7,
	"months":       1000 * 60 * 60 * 24 * 30,
	"years":        1000 * 60 * 60 * 24 * 365,
}

func bucketWidth(amount int64, unit string) (int64, error) {
	ms, ok := unitMillis[unit]
	if !ok {
		return 0, amdwerr.New(amdwerr.ConfigInvalid, "query.bucketWidth", fmt.Errorf("unknown resample unit %q", unit))
	}
	return amount * ms, nil
}

// timeSeries is an in-memory (timestamp, value) series sorted ascending
// by timestamp, standing in for the pandas Series the original resamples
// and aligns.
type timeSeries struct {
	index  []int64
	values []float64
}

func bucketStart(t, width int64) int64 {
	if width <= 0 {
		return t
	}
	q := t / width
	if t%width != 0 && t < 0 {
		q--
	}
	return q * width
}

// resampleSeries buckets (index, values) into fixed-width windows aligned
// to epoch zero and reduces each bucket with fn, matching resample()'s
// fixed rule: `value * FREQ_TYPE[unit]`.
func resampleSeries(index []int64, values []float64, width int64, fn AggregatorFunc) timeSeries {
	buckets := map[int64][]float64{}
	for i, t := range index {
		b := bucketStart(t, width)
		buckets[b] = append(buckets[b], values[i])
	}
	out := timeSeries{index: make([]int64, 0, len(buckets))}
	for b := range buckets {
		out.index = append(out.index, b)
	}
	sort.Slice(out.index, func(i, j int) bool { return out.index[i] < out.index[j] })
	out.values = make([]float64, len(out.index))
	for i, b := range out.index {
		out.values[i] = fn(buckets[b])
	}
	return out
}

// interpolateAt returns the series' value at t, linearly interpolating
// between its two nearest neighbors by time when t isn't present exactly,
// and refusing to extrapolate past either end. This stands in for
// `.interpolate().dropna()` in the original without reproducing pandas'
// position-based (rather than time-based) interpolation exactly.
func interpolateAt(index []int64, values []float64, t int64) (float64, bool) {
	n := len(index)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return index[i] >= t })
	if i < n && index[i] == t {
		return values[i], true
	}
	if i == 0 || i == n {
		return 0, false
	}
	t0, t1 := index[i-1], index[i]
	v0, v1 := values[i-1], values[i]
	if t1 == t0 {
		return v0, true
	}
	frac := float64(t-t0) / float64(t1-t0)
	return v0 + frac*(v1-v0), true
}

func sortedUnion(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, s := range [2][]int64{a, b} {
		for _, t := range s {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// combine aligns a and b on their unioned, sorted timestamps —
// interpolating interior gaps and dropping points either series can't
// cover — then reduces each aligned pair with fn, matching
// `final.align(series)` -> interpolate -> dropna -> combine in the
// original.
func combine(a, b timeSeries, fn AggregatorFunc) timeSeries {
	union := sortedUnion(a.index, b.index)
	out := timeSeries{}
	for _, t := range union {
		va, oka := interpolateAt(a.index, a.values, t)
		vb, okb := interpolateAt(b.index, b.values, t)
		if oka && okb {
			out.index = append(out.index, t)
			out.values = append(out.values, fn([]float64{va, vb}))
		}
	}
	return out
}

func scale(s timeSeries, factor float64) timeSeries {
	out := timeSeries{index: s.index, values: make([]float64, len(s.values))}
	for i, v := range s.values {
		out.values[i] = v * factor
	}
	return out
}

func seriesToDataPoints(s timeSeries) []DataPoint {
	out := make([]DataPoint, len(s.index))
	for i, t := range s.index {
		out[i] = DataPoint{Timestamp: t, Value: value.Dec(s.values[i])}
	}
	return out
}
