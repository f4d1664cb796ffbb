// Package datastore implements the tenant-aware facade binding the schema
// (C9) and query engine (C10/C11), grounded on original_source's
// datastore.Datastore and QueryMetric.create_callback. Per DESIGN.md's
// resolution of the source's per-domain-registry vs. global design
// question, this is a single stateless facade: domain is a parameter on
// every call, not part of a per-tenant instance.
package datastore

import (
	"context"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/query"
	"github.com/amondawa/amondawa/internal/value"
)

// DataPoint is one (timestamp, value) pair to store, grouped under a
// metric name and tagset by the caller (PutDataPoints's dps parameter),
// matching DataPointSet/DataPoint in the original.
type DataPoint struct {
	Timestamp int64
	Value     value.Value
}

// AggregatorSpec selects cross-series aggregation.
type AggregatorSpec struct {
	How string
}

// DownsampleSpec selects within-series resampling.
type DownsampleSpec struct {
	How    string
	Amount int64
	Unit   string
}

// QueryRequest is one read request: a metric within a domain, a time
// range, an optional tag filter, and optional aggregator/downsample
// specs, matching QueryMetric in the original.
type QueryRequest struct {
	Domain     string
	Metric     string
	Start, End int64
	Tags       keycodec.TagFilter
	Aggregator *AggregatorSpec
	Downsample *DownsampleSpec
}

// schema is the narrow slice of the schema facade the datastore needs;
// satisfied by *schema.Schema (kept as an interface here to avoid an
// import cycle concern and to keep this package testable against a fake).
type schema interface {
	StoreDatapoint(ctx context.Context, domain, metric string, t int64, tags keycodec.Tags, v value.Value) error
	MetricNames(ctx context.Context, domain string) ([]string, error)
	TagNames(ctx context.Context, domain string) ([]string, error)
	TagValues(ctx context.Context, domain string) ([]string, error)

	query.Datastore
}

// Datastore is the single per-process facade; construct with Open.
type Datastore struct {
	schema     schema
	maxReaders int
}

// Open binds sch and reads MT_READERS as the query fan-out's concurrency
// cap.
func Open(sch schema, cfg *amdwconfig.Config) *Datastore {
	return &Datastore{schema: sch, maxReaders: cfg.MTReaders}
}

// PutDataPoints stores every datapoint in dps under (domain, metric,
// tags).
func (d *Datastore) PutDataPoints(ctx context.Context, domain, metric string, tags keycodec.Tags, dps []DataPoint) error {
	for _, dp := range dps {
		if err := d.schema.StoreDatapoint(ctx, domain, metric, dp.Timestamp, tags, dp.Value); err != nil {
			return err
		}
	}
	return nil
}

// MetricNames returns every metric name registered for domain.
func (d *Datastore) MetricNames(ctx context.Context, domain string) ([]string, error) {
	return d.schema.MetricNames(ctx, domain)
}

// TagNames returns every tag name registered for domain.
func (d *Datastore) TagNames(ctx context.Context, domain string) ([]string, error) {
	return d.schema.TagNames(ctx, domain)
}

// TagValues returns every tag value registered for domain.
func (d *Datastore) TagValues(ctx context.Context, domain string) ([]string, error) {
	return d.schema.TagValues(ctx, domain)
}

// Query runs req and returns its results, selecting the QueryCallback
// variant the way QueryMetric.create_callback does: Aggregator+Downsample
// both set -> Complex; only Aggregator -> Aggregating; only Downsample ->
// Resampling; neither -> Simple.
func (d *Datastore) Query(ctx context.Context, req QueryRequest) ([]query.Result, error) {
	cb, err := buildCallback(req)
	if err != nil {
		return nil, err
	}

	filter := req.Tags
	if filter == nil {
		filter = keycodec.TagFilter{}
	}

	if err := query.Plan(ctx, d.schema, req.Domain, req.Metric, req.Start, req.End, filter, d.maxReaders, cb); err != nil {
		return nil, err
	}
	return cb.Finish()
}

func buildCallback(req QueryRequest) (query.Callback, error) {
	switch {
	case req.Aggregator != nil && req.Downsample != nil:
		return query.NewComplex(req.Metric, req.Aggregator.How, req.Downsample.How, req.Downsample.Amount, req.Downsample.Unit)
	case req.Aggregator != nil:
		return query.NewAggregating(req.Metric, req.Aggregator.How)
	case req.Downsample != nil:
		return query.NewResampling(req.Metric, req.Downsample.How, req.Downsample.Amount, req.Downsample.Unit)
	default:
		return query.NewSimple(req.Metric), nil
	}
}

// QueryMetricTags returns the multi-map union of tags across every
// IndexKey matching (domain, metric, start, end, filter), without
// reading any datapoints, matching query_metric_tags in the original.
func (d *Datastore) QueryMetricTags(ctx context.Context, domain, metric string, start, end int64, filter keycodec.TagFilter) (map[string][]string, error) {
	keys, err := d.schema.QueryIndex(ctx, domain, metric, start, end)
	if err != nil {
		return nil, err
	}
	out := map[string][]string{}
	seen := map[string]map[string]struct{}{}
	for _, k := range keys {
		if !k.HasTags(filter) {
			continue
		}
		for name, val := range k.Tags() {
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
	return out, nil
}

// DeleteDataPoints is an unimplemented hook: deletion by query is a
// documented Non-goal.
func (d *Datastore) DeleteDataPoints(ctx context.Context, domain, metric string, start, end int64, filter keycodec.TagFilter) error {
	return nil
}
