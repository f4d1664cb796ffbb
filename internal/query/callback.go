// Package query implements the fan-out query planner and the four result
// callbacks that turn a scanned set of IndexKeys into a tagset-grouped
// response, grounded on original_source's query.py.
package query

import (
	"fmt"

	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

// Callback is the polymorphic sink the planner feeds datapoint sets into,
// replacing the class hierarchy in query.py with one interface and four
// implementations (Simple, Resampling, Aggregating, Complex).
type Callback interface {
	StartDatapointSet(tags keycodec.Tags)
	AddDataPoint(t int64, v value.Value) error
	EndDatapointSet() error
	Finish() ([]Result, error)
}

// DataPoint is one decoded (timestamp, value) pair in a Result.
type DataPoint struct {
	Timestamp int64
	Value     value.Value
}

// Result is one output tagset's name, tags, and values. Tags is a
// multi-map because cross-series aggregation unions tagsets from more
// than one input series (util.to_multi_map in the original); Simple and
// Resampling results always carry single-valued entries.
type Result struct {
	Name   string
	Tags   map[string][]string
	Values []DataPoint
}

func toMultiMap(tags keycodec.Tags) map[string][]string {
	m := make(map[string][]string, len(tags))
	for k, v := range tags {
		m[k] = []string{v}
	}
	return m
}

// fromMultiMap takes the first value for each name, which is exact for a
// multi-map built by toMultiMap (never more than one value per name).
func fromMultiMap(m map[string][]string) keycodec.Tags {
	tags := make(keycodec.Tags, len(m))
	for k, vs := range m {
		if len(vs) > 0 {
			tags[k] = vs[0]
		}
	}
	return tags
}

// unionTags is the multi-map union of several tagsets: every (name,
// value) pair seen across all of them, values deduplicated per name in
// first-seen order.
func unionTags(tagsets []keycodec.Tags) map[string][]string {
	seen := map[string]map[string]struct{}{}
	out := map[string][]string{}
	for _, tags := range tagsets {
		for name, val := range tags {
			if seen[name] == nil {
				seen[name] = map[string]struct{}{}
			}
			if _, ok := seen[name][val]; ok {
				continue
			}
			seen[name][val] = struct{}{}
			out[name] = append(out[name], val)
		}
	}
	return out
}

func dataPointsToSeries(dps []DataPoint) ([]int64, []float64) {
	index := make([]int64, len(dps))
	values := make([]float64, len(dps))
	for i, dp := range dps {
		index[i] = dp.Timestamp
		f, _ := dp.Value.Float64()
		values[i] = f
	}
	return index, values
}

func unsupportedValueErr(t int64) error {
	return amdwerr.New(amdwerr.UnsupportedAggregator, "query.AddDataPoint", fmt.Errorf("datapoint at t=%d is not numeric", t))
}
