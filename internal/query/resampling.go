package query

import (
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

// Resampling buckets each tagset's series into fixed-width time windows
// and reduces each bucket with an aggregator, matching
// ResamplingQueryCallback.
type Resampling struct {
	metric string
	how    string
	aggFn  AggregatorFunc
	width  int64

	results    []Result
	sampleSize int

	active bool
	tags   keycodec.Tags
	index  []int64
	values []float64
}

// NewResampling validates how against the supported aggregator set and
// amount*unit against the supported granularities up front, before any
// datapoint arrives.
func NewResampling(metric, how string, amount int64, unit string) (*Resampling, error) {
	fn, err := lookupAggregator(how)
	if err != nil {
		return nil, err
	}
	width, err := bucketWidth(amount, unit)
	if err != nil {
		return nil, err
	}
	return &Resampling{metric: metric, how: how, aggFn: fn, width: width}, nil
}

func (r *Resampling) StartDatapointSet(tags keycodec.Tags) {
	r.active = true
	r.tags = tags
	r.index = nil
	r.values = nil
}

func (r *Resampling) AddDataPoint(t int64, v value.Value) error {
	f, ok := v.Float64()
	if !ok {
		return unsupportedValueErr(t)
	}
	r.index = append(r.index, t)
	r.values = append(r.values, f)
	return nil
}

func (r *Resampling) EndDatapointSet() error {
	if r.active {
		bucketed := resampleSeries(r.index, r.values, r.width, r.aggFn)
		r.results = append(r.results, Result{
			Name:   r.metric,
			Tags:   toMultiMap(r.tags),
			Values: seriesToDataPoints(bucketed),
		})
		r.sampleSize += len(r.index)
	}
	r.active = false
	return nil
}

func (r *Resampling) Finish() ([]Result, error) {
	return r.results, nil
}

// SampleSize is the total number of raw (pre-bucketing) datapoints seen.
func (r *Resampling) SampleSize() int { return r.sampleSize }
