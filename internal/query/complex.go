package query

import (
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

// Complex resamples each tagset's series first, then aggregates the
// resampled series across tagsets, matching ComplexQueryCallback (which
// composes an AggegatingQueryCallback over a ResamplingQueryCallback).
type Complex struct {
	resampler  *Resampling
	aggregator *Aggregating
}

// NewComplex builds a Complex callback: resampleHow/amount/unit bucket
// each series, aggHow combines the bucketed series across tagsets.
func NewComplex(metric, aggHow, resampleHow string, amount int64, unit string) (*Complex, error) {
	resampler, err := NewResampling(metric, resampleHow, amount, unit)
	if err != nil {
		return nil, err
	}
	aggregator, err := NewAggregating(metric, aggHow)
	if err != nil {
		return nil, err
	}
	return &Complex{resampler: resampler, aggregator: aggregator}, nil
}

func (c *Complex) StartDatapointSet(tags keycodec.Tags) { c.resampler.StartDatapointSet(tags) }

func (c *Complex) AddDataPoint(t int64, v value.Value) error { return c.resampler.AddDataPoint(t, v) }

func (c *Complex) EndDatapointSet() error { return c.resampler.EndDatapointSet() }

func (c *Complex) Finish() ([]Result, error) {
	resampled, err := c.resampler.Finish()
	if err != nil {
		return nil, err
	}
	for _, r := range resampled {
		index, values := dataPointsToSeries(r.Values)
		c.aggregator.addSeries(fromMultiMap(r.Tags), index, values)
	}
	return c.aggregator.Finish()
}
