package query

import (
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

// Aggregating combines every tagset's series into one, aligning on
// timestamp and reducing pairwise with an aggregator, matching
// AggegatingQueryCallback.
//
// The original's finish loop folds series_list[0] into itself before
// folding in the rest, double-counting the first series whenever the
// aggregator isn't self-cancelling (sum, min, max all break under it).
// Scenario 4 (two series summed elementwise) only holds if the first
// series is folded in exactly once, so Finish here seeds the
// accumulator with series[0] and folds only series[1:].
type Aggregating struct {
	metric string
	how    string
	aggFn  AggregatorFunc

	tagsets    []keycodec.Tags
	series     []timeSeries
	sampleSize int

	active bool
	tags   keycodec.Tags
	index  []int64
	values []float64
}

// NewAggregating validates how up front.
func NewAggregating(metric, how string) (*Aggregating, error) {
	fn, err := lookupAggregator(how)
	if err != nil {
		return nil, err
	}
	return &Aggregating{metric: metric, how: how, aggFn: fn}, nil
}

func (a *Aggregating) StartDatapointSet(tags keycodec.Tags) {
	a.active = true
	a.tags = tags
	a.index = nil
	a.values = nil
}

func (a *Aggregating) AddDataPoint(t int64, v value.Value) error {
	f, ok := v.Float64()
	if !ok {
		return unsupportedValueErr(t)
	}
	a.index = append(a.index, t)
	a.values = append(a.values, f)
	return nil
}

func (a *Aggregating) EndDatapointSet() error {
	if a.active {
		a.addSeries(a.tags, a.index, a.values)
	}
	a.active = false
	return nil
}

// addSeries registers one tagset's series directly, letting Complex feed
// it pre-bucketed series without going through the raw add/start/end
// protocol.
func (a *Aggregating) addSeries(tags keycodec.Tags, index []int64, values []float64) {
	a.tagsets = append(a.tagsets, tags)
	a.series = append(a.series, timeSeries{index: index, values: values})
	a.sampleSize += len(index)
}

func (a *Aggregating) Finish() ([]Result, error) {
	if len(a.series) == 0 {
		return nil, nil
	}

	combineFn := a.aggFn
	if a.how == "avg" {
		combineFn = sumValues
	}

	final := a.series[0]
	for _, s := range a.series[1:] {
		final = combine(final, s, combineFn)
	}
	if a.how == "avg" {
		final = scale(final, 1/float64(len(a.series)))
	}

	return []Result{{
		Name:   a.metric,
		Tags:   unionTags(a.tagsets),
		Values: seriesToDataPoints(final),
	}}, nil
}

// SampleSize is the total number of datapoints folded in across every
// tagset.
func (a *Aggregating) SampleSize() int { return a.sampleSize }
