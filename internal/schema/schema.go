// Package schema binds the catalog and blockring components into a single
// facade the datastore calls through, owning the one maintenance worker
// per process the way original_source's DatapointsSchema and Schema did
// before being split apart here.
package schema

import (
	"context"

	"github.com/go-kit/log"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/auth"
	"github.com/amondawa/amondawa/internal/block"
	"github.com/amondawa/amondawa/internal/blockring"
	"github.com/amondawa/amondawa/internal/catalog"
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/kvtable"
	"github.com/amondawa/amondawa/internal/scheduledpool"
	"github.com/amondawa/amondawa/internal/value"
)

// Schema is the storage-layer facade: ring of time-sharded block tables
// plus the ancillary metric/tag catalogs, all scoped by the caller's
// domain parameter rather than per-domain instances.
type Schema struct {
	ring        *blockring.Ring
	catalog     *catalog.Catalog
	credentials *catalog.Credentials
	pool        *scheduledpool.Pool
}

// Bootstrap provisions every backend table this schema needs: the block
// ring's master table, the three ancillary catalogs, and the credentials
// catalog. Idempotent: existing tables are left in place, and the ring's
// slot rows are written only into an empty master table.
func Bootstrap(ctx context.Context, store kvtable.Table, cfg *amdwconfig.Config, now int64) error {
	if err := blockring.Bootstrap(ctx, store, cfg, now); err != nil {
		return err
	}
	if err := catalog.Bootstrap(ctx, store, cfg); err != nil {
		return err
	}
	return catalog.BootstrapCredentials(ctx, store, cfg)
}

// Open loads an existing, bootstrapped backend into a Schema and starts
// its writer pool (maintenance is started separately via
// StartMaintenance, mirroring start_maintenance/stop_maintenance being
// distinct from construction in the original).
func Open(ctx context.Context, store kvtable.Table, cfg *amdwconfig.Config, logger log.Logger, clock blockring.Clock) (*Schema, error) {
	pool := scheduledpool.New(cfg.MTWriters, cfg.MTWriters*4)
	ring, err := blockring.Open(ctx, store, cfg, pool, logger, clock)
	if err != nil {
		return nil, err
	}
	return &Schema{
		ring:        ring,
		catalog:     catalog.New(store, cfg),
		credentials: catalog.NewCredentials(store, cfg),
		pool:        pool,
	}, nil
}

// StartMaintenance starts the background ring-rollover worker.
func (s *Schema) StartMaintenance() { s.ring.StartMaintenance() }

// StopMaintenance stops the background ring-rollover worker and waits for
// it to exit.
func (s *Schema) StopMaintenance() { s.ring.StopMaintenance() }

// Shutdown stops maintenance and the writer pool, draining queued flushes.
func (s *Schema) Shutdown() {
	s.ring.StopMaintenance()
	s.pool.Shutdown()
}

// StoreDatapoint stores one datapoint and registers its metric name and
// tags in the ancillary catalogs.
func (s *Schema) StoreDatapoint(ctx context.Context, domain, metric string, t int64, tags keycodec.Tags, v value.Value) error {
	if err := s.catalog.StoreMetric(ctx, domain, metric); err != nil {
		return err
	}
	if err := s.catalog.StoreTags(ctx, domain, tags); err != nil {
		return err
	}
	return s.ring.StoreDatapoint(ctx, domain, metric, t, tags, v)
}

// QueryIndex returns every index key across the ring for (domain, metric)
// within [start, end].
func (s *Schema) QueryIndex(ctx context.Context, domain, metric string, start, end int64) ([]*keycodec.IndexKey, error) {
	return s.ring.QueryIndex(ctx, domain, metric, start, end)
}

// QueryDatapoints returns every datapoint row for indexKey within [start,
// end].
func (s *Schema) QueryDatapoints(ctx context.Context, indexKey *keycodec.IndexKey, start, end int64) ([]block.DatapointRow, error) {
	return s.ring.QueryDatapoints(ctx, indexKey, start, end)
}

// MetricNames returns every metric name registered for domain.
func (s *Schema) MetricNames(ctx context.Context, domain string) ([]string, error) {
	return s.catalog.MetricNames(ctx, domain)
}

// TagNames returns every tag name registered for domain.
func (s *Schema) TagNames(ctx context.Context, domain string) ([]string, error) {
	return s.catalog.TagNames(ctx, domain)
}

// TagValues returns every tag value registered for domain.
func (s *Schema) TagValues(ctx context.Context, domain string) ([]string, error) {
	return s.catalog.TagValues(ctx, domain)
}

// GetCredentials looks up one access key's record for request signature
// verification, delegating to the credentials catalog (the
// catalog.Credentials value, which implements auth.CredentialStore).
func (s *Schema) GetCredentials(accessKeyID string) (auth.Credential, bool, error) {
	return s.credentials.GetCredential(accessKeyID)
}

// PutCredential stores or replaces one credential record; used by
// administrative tooling, not by the request path.
func (s *Schema) PutCredential(ctx context.Context, cred auth.Credential) error {
	return s.credentials.Put(ctx, cred)
}
