// Package catalog implements the ancillary per-domain metric-name,
// tag-name, and tag-value tables, deduplicating writes through a bounded
// LRU the way original_source's schema.Schema does with its
// metric_name_cache/tag_name_cache/tag_value_cache sets.
package catalog

import (
	"context"
	"fmt"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/kvtable"
	"github.com/amondawa/amondawa/internal/lru"
)

const (
	metricNamesAttr = "name"
	tagNamesAttr    = "name"
	tagValuesAttr   = "value"
	domainAttr      = "domain"
)

// Catalog owns the three ancillary tables keyed by domain and exposes
// dedup-on-write helpers plus domain-scoped listing.
type Catalog struct {
	store kvtable.Table

	metricNamesTable string
	tagNamesTable    string
	tagValuesTable   string

	metricNameSeen *lru.Set[string]
	tagNameSeen    *lru.Set[string]
	tagValueSeen   *lru.Set[string]
}

// New wraps store's three ancillary tables, sizing the write-dedup LRUs
// from cfg.
func New(store kvtable.Table, cfg *amdwconfig.Config) *Catalog {
	return &Catalog{
		store:            store,
		metricNamesTable: cfg.TableName("metric_names"),
		tagNamesTable:    cfg.TableName("tag_names"),
		tagValuesTable:   cfg.TableName("tag_values"),
		metricNameSeen:   lru.NewSet[string](cfg.CacheWriteIndexKey),
		tagNameSeen:      lru.NewSet[string](cfg.CacheWriteIndexKey),
		tagValueSeen:     lru.NewSet[string](cfg.CacheWriteIndexKey),
	}
}

// Bootstrap creates the three ancillary tables; they carry minimal
// provisioned throughput since they're write-deduped and rarely grow.
func Bootstrap(ctx context.Context, store kvtable.Table, cfg *amdwconfig.Config) error {
	low := kvtable.Throughput{Read: 1, Write: 1}
	if err := store.Create(ctx, cfg.TableName("metric_names"), &kvtable.KeySchema{Name: domainAttr, Type: kvtable.AttrString}, &kvtable.KeySchema{Name: metricNamesAttr, Type: kvtable.AttrString}, low); err != nil {
		return err
	}
	if err := store.Create(ctx, cfg.TableName("tag_names"), &kvtable.KeySchema{Name: domainAttr, Type: kvtable.AttrString}, &kvtable.KeySchema{Name: tagNamesAttr, Type: kvtable.AttrString}, low); err != nil {
		return err
	}
	if err := store.Create(ctx, cfg.TableName("tag_values"), &kvtable.KeySchema{Name: domainAttr, Type: kvtable.AttrString}, &kvtable.KeySchema{Name: tagValuesAttr, Type: kvtable.AttrString}, low); err != nil {
		return err
	}
	return nil
}

// StoreMetric records metric as known for domain, deduped.
func (c *Catalog) StoreMetric(ctx context.Context, domain, metric string) error {
	return c.storeCache(ctx, dedupKey(domain, metric), c.metricNameSeen, c.metricNamesTable, kvtable.Item{
		domainAttr:      domain,
		metricNamesAttr: metric,
	})
}

// StoreTags records every (name, value) pair in tags as known for domain,
// deduped per name and per value independently (matching the original:
// tag_name_cache and tag_value_cache are separate sets, so "host=a" and
// "host=b" both register the tag name "host" once but each value once).
func (c *Catalog) StoreTags(ctx context.Context, domain string, tags keycodec.Tags) error {
	for name, val := range tags {
		if err := c.storeCache(ctx, dedupKey(domain, name), c.tagNameSeen, c.tagNamesTable, kvtable.Item{
			domainAttr:   domain,
			tagNamesAttr: name,
		}); err != nil {
			return err
		}
		if err := c.storeCache(ctx, dedupKey(domain, val), c.tagValueSeen, c.tagValuesTable, kvtable.Item{
			domainAttr:    domain,
			tagValuesAttr: val,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) storeCache(ctx context.Context, key string, seen *lru.Set[string], table string, item kvtable.Item) error {
	if seen.Contains(key) {
		return nil
	}
	if err := c.store.PutItem(ctx, table, item, true); err != nil {
		return amdwerr.New(amdwerr.BackendTransport, "catalog.storeCache", err)
	}
	seen.Add(key)
	return nil
}

func dedupKey(domain, part string) string {
	return domain + "|" + part
}

// MetricNames returns every metric name registered for domain.
func (c *Catalog) MetricNames(ctx context.Context, domain string) ([]string, error) {
	return c.queryNames(ctx, c.metricNamesTable, domain, metricNamesAttr)
}

// TagNames returns every tag name registered for domain.
func (c *Catalog) TagNames(ctx context.Context, domain string) ([]string, error) {
	return c.queryNames(ctx, c.tagNamesTable, domain, tagNamesAttr)
}

// TagValues returns every tag value registered for domain.
func (c *Catalog) TagValues(ctx context.Context, domain string) ([]string, error) {
	return c.queryNames(ctx, c.tagValuesTable, domain, tagValuesAttr)
}

func (c *Catalog) queryNames(ctx context.Context, table, domain, attr string) ([]string, error) {
	it, err := c.store.Query(ctx, table, kvtable.QueryInput{
		HashKeyName: domainAttr,
		HashEq:      domain,
		Attributes:  []string{attr},
		Consistent:  false,
	})
	if err != nil {
		return nil, amdwerr.New(amdwerr.BackendTransport, "catalog.queryNames", err)
	}
	defer it.Close()

	var out []string
	for {
		item, ok, err := it.Next()
		if err != nil {
			return nil, amdwerr.New(amdwerr.BackendTransport, "catalog.queryNames", err)
		}
		if !ok {
			break
		}
		out = append(out, fmt.Sprint(item[attr]))
	}
	return out, nil
}
