// Package cluster implements the Storage Assigner of spec.md §4.5: on
// first bucket access it picks a backend by least utilization, excludes
// storages already hosting a sibling bucket of the same name, persists
// the binding, triggers schema sync, and optionally registers a
// replication listener.
//
// Storage rows are bootstrap-resident for the same reason Topology rows
// are (see the topology package's doc comment): loading "all Storages"
// to pick one must not itself require a bucket/storage assignment.
package cluster

import (
	"context"
	"fmt"
	"sort"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/basis-company/sharding/bucket"
	"github.com/basis-company/sharding/errors"
	"github.com/basis-company/sharding/metrics"
	"github.com/basis-company/sharding/proto"
)

// SchemaLookup is the slice of the Schema Registry this package needs:
// whether a segment has a schema entry, and the per-class overrides of
// spec.md §4.5 step 1 and §9.
type SchemaLookup interface {
	HasSegment(name string) bool
	GetClassSegment(class string) (proto.Segment, error)
	StorageCasterFor(class string) proto.StorageCaster
}

// Assigner is the Storage Assigner.
type Assigner interface {
	// AssignStorage implements spec.md §4.5 for one bucket routed under
	// class (used to resolve per-class overrides).
	AssignStorage(ctx context.Context, b *proto.Bucket, class string) error
}

type assigner struct {
	db     proto.Database
	schema SchemaLookup
}

// NewAssigner returns an Assigner that reads/writes against db's
// bootstrap driver and the segment metadata schema exposes.
func NewAssigner(db proto.Database, schema SchemaLookup) Assigner {
	return &assigner{db: db, schema: schema}
}

func (a *assigner) AssignStorage(ctx context.Context, b *proto.Bucket, class string) error {
	span := trace.SpanFromContextSafe(ctx)

	if !b.IsAssigned() {
		storageID, err := a.cast(ctx, b, class)
		if err != nil {
			span.Errorf("assignStorage: cast failed for bucket name=%s shard=%d replica=%d: %v",
				b.Name, b.Shard, b.Replica, err)
			return err
		}
		b.Storage = storageID
		if err := bucket.Persist(ctx, a.db.Driver(), b); err != nil {
			span.Errorf("assignStorage: persist bucket %d failed: %v", b.ID, err)
			return err
		}
		metrics.BucketsAssigned.WithLabelValues(b.Name).Inc()
		span.Infof("assignStorage: bucket name=%s shard=%d replica=%d -> storage=%d",
			b.Name, b.Shard, b.Replica, b.Storage)
	}

	driver, err := a.db.GetStorageDriver(b.Storage)
	if err != nil {
		return err
	}

	if a.schema.HasSegment(b.Name) {
		segment, err := a.schema.GetClassSegment(class)
		if err != nil {
			return err
		}
		if err := driver.SyncSchema(ctx, a.db, segment); err != nil {
			span.Errorf("assignStorage: syncSchema(%s) failed: %v", b.Name, err)
			return err
		}
	}

	if b.Version > 0 && b.IsPrimary() {
		if err := a.maybeRegisterReplication(ctx, b, class, driver); err != nil {
			return err
		}
	}

	return nil
}

func (a *assigner) cast(ctx context.Context, b *proto.Bucket, class string) (uint64, error) {
	if caster := a.schema.StorageCasterFor(class); caster != nil {
		return caster(ctx, a.db, b)
	}
	return a.defaultCast(ctx, b)
}

// defaultCast picks the storage with minimum getUsage() among storages
// not already hosting another bucket with the same name, ties broken
// by first-encountered (spec.md §4.5 step 1 default).
func (a *assigner) defaultCast(ctx context.Context, b *proto.Bucket) (uint64, error) {
	storages, err := LoadAll(ctx, a.db.Driver())
	if err != nil {
		return 0, err
	}
	if len(storages) == 0 {
		return 0, errors.ErrNoAvailableStorage
	}

	siblings, err := bucket.LoadByName(ctx, a.db.Driver(), b.Name)
	if err != nil {
		return 0, err
	}
	occupied := make(map[uint64]struct{}, len(siblings))
	for _, s := range siblings {
		if s.IsAssigned() {
			occupied[s.Storage] = struct{}{}
		}
	}

	sort.Slice(storages, func(i, j int) bool { return storages[i].ID < storages[j].ID })

	var (
		best    uint64
		bestUse int64 = -1
	)
	for _, s := range storages {
		if _, hit := occupied[s.ID]; hit {
			continue
		}
		driver, err := a.db.GetStorageDriver(s.ID)
		if err != nil {
			return 0, err
		}
		usage, err := driver.GetUsage(ctx)
		if err != nil {
			return 0, errors.BackendError("getUsage", err)
		}
		metrics.StorageUsage.WithLabelValues(fmt.Sprint(s.ID)).Set(float64(usage))
		if bestUse == -1 || usage < bestUse {
			best, bestUse = s.ID, usage
		}
	}
	if bestUse == -1 {
		return 0, errors.ErrNoAvailableStorage
	}
	return best, nil
}

// maybeRegisterReplication registers a "replication" listener on every
// table of the segment when the owning topology declares replicas and
// is READY (spec.md §4.5 step 4).
func (a *assigner) maybeRegisterReplication(ctx context.Context, b *proto.Bucket, class string, driver proto.Driver) error {
	topologies, err := LoadTopologiesByName(ctx, a.db.Driver(), b.Name)
	if err != nil {
		return err
	}
	var ready *proto.Topology
	for _, t := range topologies {
		if t.Version == b.Version && t.Status == proto.TopologyReady {
			ready = t
			break
		}
	}
	if ready == nil || ready.Replicas == 0 {
		return nil
	}

	cdc, ok := driver.(proto.CdcCapableDriver)
	if !ok {
		return nil
	}
	segment, err := a.schema.GetClassSegment(class)
	if err != nil {
		return err
	}
	for _, table := range segment.Tables() {
		if err := cdc.RegisterChanges(ctx, table, "replication"); err != nil {
			return err
		}
	}
	return nil
}
