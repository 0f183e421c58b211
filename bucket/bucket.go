// Package bucket implements Bucket row access and lazy materialization
// (generateBuckets, spec.md §4.1 step 4) against the buckets-table
// driver. It never goes through the locator — the locator is built on
// top of this package, not the other way around, which is how the
// buckets-table recursion (spec.md §4.1 "special case", §9) is broken.
package bucket

import (
	"context"
	"fmt"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/basis-company/sharding/proto"
)

// LoadByName returns every Bucket row with the given segment name,
// read directly from the buckets-table driver.
func LoadByName(ctx context.Context, driver proto.Driver, name string) ([]*proto.Bucket, error) {
	rows, err := driver.Find(ctx, proto.BucketTableName, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	out := make([]*proto.Bucket, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// Generate idempotently materializes shards*(replicas+1) Bucket rows
// for topology, one per (shard, replica) pair, via findOrCreate so
// concurrent callers racing to materialize the same segment converge
// on the same rows (spec.md §4.1 step 4).
func Generate(ctx context.Context, driver proto.Driver, topology *proto.Topology) ([]*proto.Bucket, error) {
	span := trace.SpanFromContextSafe(ctx)

	out := make([]*proto.Bucket, 0, int(topology.Shards)*int(topology.Replicas+1))
	for shard := uint32(0); shard < topology.Shards; shard++ {
		for replica := uint32(0); replica <= topology.Replicas; replica++ {
			query := map[string]any{
				"name":    topology.Name,
				"version": topology.Version,
				"shard":   shard,
				"replica": replica,
			}
			data := map[string]any{
				"name":    topology.Name,
				"version": topology.Version,
				"shard":   shard,
				"replica": replica,
				"storage": uint64(0),
			}
			row, err := driver.FindOrCreate(ctx, proto.BucketTableName, query, data)
			if err != nil {
				span.Errorf("generateBuckets: findOrCreate name=%s shard=%d replica=%d failed: %v",
					topology.Name, shard, replica, err)
				return nil, err
			}
			out = append(out, fromRow(row))
		}
	}
	span.Infof("generateBuckets: materialized %d buckets for name=%s version=%d", len(out), topology.Name, topology.Version)
	return out, nil
}

// Persist writes b's storage assignment back to the buckets table.
func Persist(ctx context.Context, driver proto.Driver, b *proto.Bucket) error {
	_, err := driver.Update(ctx, proto.BucketTableName, b.ID, map[string]any{"storage": b.Storage})
	return err
}

func fromRow(row map[string]any) *proto.Bucket {
	b := &proto.Bucket{
		Name: fmt.Sprint(row["name"]),
	}
	b.ID = toUint64(row["id"])
	b.Version = toUint64(row["version"])
	b.Shard = uint32(toUint64(row["shard"]))
	b.Replica = uint32(toUint64(row["replica"]))
	b.Storage = toUint64(row["storage"])
	return b
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case int:
		return uint64(n)
	case int64:
		return uint64(n)
	case float64:
		return uint64(n)
	default:
		return 0
	}
}
