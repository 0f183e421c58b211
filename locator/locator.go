// Package locator implements the Bucket Locator of spec.md §4.1: given
// a class and a record, it resolves the segment name, materializes and
// assigns buckets lazily, and filters them by replica flag and shard
// key before returning them to the caller.
package locator

import (
	"context"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/basis-company/sharding/bucket"
	"github.com/basis-company/sharding/cluster"
	"github.com/basis-company/sharding/errors"
	"github.com/basis-company/sharding/proto"
	"github.com/basis-company/sharding/topology"
)

// Locator is the Bucket Locator.
type Locator interface {
	// GetBuckets implements spec.md §4.1.
	GetBuckets(ctx context.Context, class string, data map[string]any, writable, multiple bool) ([]*proto.Bucket, error)
}

type locator struct {
	db       proto.Database
	schema   proto.SchemaRegistry
	topology topology.Manager
	assigner cluster.Assigner
}

// New returns a Locator. topologyMgr and assigner are typically
// constructed with this same db/schema pair; they are accepted
// separately so callers can fake either in isolation.
func New(db proto.Database, schema proto.SchemaRegistry, topologyMgr topology.Manager, assigner cluster.Assigner) Locator {
	return &locator{db: db, schema: schema, topology: topologyMgr, assigner: assigner}
}

// ClassResolver adapts a SchemaRegistry into topology.ClassResolver, so
// a Manager constructed against the same registry agrees with this
// Locator on segment names and shardedness.
func ClassResolver(schema proto.SchemaRegistry) topology.ClassResolver {
	return schemaClassResolver{schema: schema}
}

type schemaClassResolver struct {
	schema proto.SchemaRegistry
}

func (r schemaClassResolver) Resolve(class string) (name string, sharded bool, ok bool) {
	model, err := r.schema.GetClassModel(class)
	if err != nil || model == nil {
		return "", false, false
	}
	name = class
	if seg, err := r.schema.GetClassSegment(class); err == nil && seg != nil {
		name = seg.Fullname()
	}
	return name, model.IsSharded(), true
}

func (l *locator) GetBuckets(ctx context.Context, class string, data map[string]any, writable, multiple bool) ([]*proto.Bucket, error) {
	span := trace.SpanFromContextSafe(ctx)

	name := resolveName(class, l.schema)

	if name == proto.BucketTableName {
		// breaks the buckets-table recursion: locating the buckets table
		// would otherwise require reading the buckets table (spec.md §9).
		return []*proto.Bucket{proto.BootstrapBucket}, nil
	}

	rows, err := bucket.LoadByName(ctx, l.db.Driver(), name)
	if err != nil {
		return nil, err
	}

	topo, err := l.topology.GetReadyTopology(ctx, class)
	if err != nil {
		return nil, err
	}
	if topo != nil {
		rows = filterVersion(rows, topo.Version)
	}

	if len(rows) == 0 {
		generateFrom := topo
		if generateFrom == nil {
			generateFrom = proto.DefaultTopology(name)
		}
		rows, err = bucket.Generate(ctx, l.db.Driver(), generateFrom)
		if err != nil {
			return nil, err
		}
	}

	rows = filterByWritability(rows, writable)

	if topo != nil && len(rows) > 1 {
		if shard := getShard(topo, class, data, l.schema); shard != nil {
			rows = filterByShard(rows, *shard)
		}
	}

	if !multiple && len(rows) > 1 {
		span.Warnf("getBuckets: ambiguous routing for class=%s, %d buckets survived filtering", class, len(rows))
		return nil, errors.ErrAmbiguousRouting
	}

	for _, b := range rows {
		if err := l.assigner.AssignStorage(ctx, b, class); err != nil {
			return nil, err
		}
	}

	return rows, nil
}

// resolveName implements spec.md §4.1's segment-name resolution: a
// registered class resolves to its segment's fullname; otherwise the
// string is split on the first '.' or '_' (dot checked first), or used
// whole if it contains neither.
func resolveName(class string, schema proto.SchemaRegistry) string {
	if seg, err := schema.GetClassSegment(class); err == nil && seg != nil {
		return seg.Fullname()
	}
	if idx := strings.IndexByte(class, '.'); idx >= 0 {
		return class[:idx]
	}
	if idx := strings.IndexByte(class, '_'); idx >= 0 {
		return class[:idx]
	}
	return class
}

func filterVersion(rows []*proto.Bucket, version uint64) []*proto.Bucket {
	out := make([]*proto.Bucket, 0, len(rows))
	for _, b := range rows {
		if b.Version == version {
			out = append(out, b)
		}
	}
	return out
}

// filterByWritability implements §4.1 step 5: prefer the partition
// matching the request (primaries when writable, replicas otherwise),
// falling back to every surviving bucket if that partition is empty —
// e.g. a writable=false request when no replicas exist routes to the
// primary (spec.md §9 Open Question 2, preserved as specified).
func filterByWritability(rows []*proto.Bucket, writable bool) []*proto.Bucket {
	var matching []*proto.Bucket
	for _, b := range rows {
		if b.IsPrimary() == writable {
			matching = append(matching, b)
		}
	}
	if len(matching) > 0 {
		return matching
	}
	return rows
}

func filterByShard(rows []*proto.Bucket, shard uint32) []*proto.Bucket {
	out := make([]*proto.Bucket, 0, 1)
	for _, b := range rows {
		if b.Shard == shard {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return rows
	}
	return out
}

// getShard implements spec.md §4.1's "Shard key computation": absent a
// key, no filtering is possible (nil); an integer-valued key shards
// directly, a non-integer key shards on the absolute value of its
// CRC32.
func getShard(topo *proto.Topology, class string, data map[string]any, schema proto.SchemaRegistry) *uint32 {
	extractor := schema.KeyExtractorFor(class)
	if extractor == nil {
		extractor = proto.DefaultKeyExtractor
	}
	key := extractor(data)
	if key == nil {
		return nil
	}

	s := fmt.Sprint(key)
	var n uint64
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(i, 10) == s {
		if i < 0 {
			i = -i
		}
		n = uint64(i)
	} else {
		n = uint64(crc32.ChecksumIEEE([]byte(s)))
	}

	shard := uint32(n % uint64(topo.Shards))
	return &shard
}
