package locator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basis-company/sharding/cluster"
	"github.com/basis-company/sharding/kvstore"
	"github.com/basis-company/sharding/localdriver"
	"github.com/basis-company/sharding/proto"
	"github.com/basis-company/sharding/schema"
	"github.com/basis-company/sharding/topology"
)

type fakeDB struct {
	bootstrap proto.Driver
	storages  map[uint64]*localdriver.Driver
}

func (f *fakeDB) CreateInstance(context.Context, string, map[string]any) (any, error) { return nil, nil }
func (f *fakeDB) Find(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeDB) FindOne(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, nil
}
func (f *fakeDB) FindOrCreate(context.Context, string, map[string]any, map[string]any) (map[string]any, error) {
	return nil, nil
}
func (f *fakeDB) FindOrFail(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, nil
}
func (f *fakeDB) Dispatch(context.Context, proto.Job) error { return nil }
func (f *fakeDB) Driver() proto.Driver                      { return f.bootstrap }
func (f *fakeDB) GetStorageDriver(id uint64) (proto.Driver, error) {
	d, ok := f.storages[id]
	if !ok {
		return nil, fmt.Errorf("no such storage: %d", id)
	}
	return d, nil
}

// bootstrapSegment is the set of bootstrap-resident tables the
// bootstrap driver needs synced before the locator can use it.
type bootstrapSegment struct{}

func (bootstrapSegment) Fullname() string { return "bootstrap" }
func (bootstrapSegment) Tables() []string {
	return []string{proto.BucketTableName, proto.StorageTableName, proto.TopologyTableName}
}
func (bootstrapSegment) Models() []proto.Model {
	return []proto.Model{
		plainModel{proto.BucketTableName},
		plainModel{proto.StorageTableName},
		plainModel{proto.TopologyTableName},
	}
}

type plainModel struct{ table string }

func (m plainModel) Table() string                                 { return m.table }
func (plainModel) IsSharded() bool                                  { return false }
func (plainModel) Properties() []proto.Property                     { return nil }
func (plainModel) Indexes() []proto.Index                           { return nil }
func (plainModel) SupportsBootstrap() bool                          { return false }
func (plainModel) Bootstrap(context.Context, proto.Database) error { return nil }

func newHarness(t *testing.T, storageCount int) (*fakeDB, *schema.Registry) {
	ctx := context.Background()
	bootstrap, err := localdriver.New(ctx, kvstore.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, bootstrap.SyncSchema(ctx, nil, bootstrapSegment{}))

	db := &fakeDB{bootstrap: bootstrap, storages: map[uint64]*localdriver.Driver{}}
	for i := 1; i <= storageCount; i++ {
		sd, err := localdriver.New(ctx, kvstore.NewMemStore())
		require.NoError(t, err)
		require.NoError(t, cluster.Register(ctx, bootstrap, uint64(i)))
		db.storages[uint64(i)] = sd
	}

	return db, schema.NewRegistry()
}

func buildLocator(db *fakeDB, reg *schema.Registry) Locator {
	resolver := ClassResolver(reg)
	mgr := topology.NewManager(db.Driver(), resolver, noopConfigurer{})
	assigner := cluster.NewAssigner(db, reg)
	return New(db, reg, mgr, assigner)
}

type noopConfigurer struct{}

func (noopConfigurer) Configure(context.Context, string) (*proto.Topology, error) { return nil, nil }

func TestGetBuckets_DefaultTopologyUnsharded(t *testing.T) {
	ctx := context.Background()
	db, reg := newHarness(t, 2)
	reg.RegisterClass("order", "Order", &schema.Model{TableName: "order", Sharded: false}, nil, nil)
	loc := buildLocator(db, reg)

	buckets, err := loc.GetBuckets(ctx, "Order", map[string]any{}, true, false)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, uint32(0), buckets[0].Shard)
	require.Equal(t, uint32(0), buckets[0].Replica)
	require.True(t, buckets[0].IsAssigned())
}

func TestGetBuckets_IntegerKeyShardsModFour(t *testing.T) {
	ctx := context.Background()
	db, reg := newHarness(t, 4)
	reg.RegisterClass("order", "Order", &schema.Model{TableName: "order", Sharded: true}, nil, nil)

	_, err := db.Driver().Create(ctx, proto.TopologyTableName, map[string]any{
		"name": "order", "version": uint64(0), "status": int(proto.TopologyReady), "shards": uint32(4), "replicas": uint32(0),
	})
	require.NoError(t, err)

	loc := buildLocator(db, reg)
	buckets, err := loc.GetBuckets(ctx, "Order", map[string]any{"id": 7}, true, false)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, uint32(3), buckets[0].Shard)
}

func TestGetBuckets_StringKeyShardsByCRC32(t *testing.T) {
	ctx := context.Background()
	db, reg := newHarness(t, 4)
	reg.RegisterClass("order", "Order", &schema.Model{TableName: "order", Sharded: true}, nil, nil)

	_, err := db.Driver().Create(ctx, proto.TopologyTableName, map[string]any{
		"name": "order", "version": uint64(0), "status": int(proto.TopologyReady), "shards": uint32(4), "replicas": uint32(0),
	})
	require.NoError(t, err)

	loc := buildLocator(db, reg)
	buckets, err := loc.GetBuckets(ctx, "Order", map[string]any{"id": "abc"}, true, false)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, uint32(2), buckets[0].Shard)
}

func TestGetBuckets_ReplicaReadFallback(t *testing.T) {
	ctx := context.Background()
	db, reg := newHarness(t, 2)
	reg.RegisterClass("order", "Order", &schema.Model{TableName: "order", Sharded: true}, nil, nil)

	_, err := db.Driver().Create(ctx, proto.TopologyTableName, map[string]any{
		"name": "order", "version": uint64(0), "status": int(proto.TopologyReady), "shards": uint32(1), "replicas": uint32(1),
	})
	require.NoError(t, err)

	loc := buildLocator(db, reg)

	readable, err := loc.GetBuckets(ctx, "Order", map[string]any{}, false, false)
	require.NoError(t, err)
	require.Len(t, readable, 1)
	require.Equal(t, uint32(1), readable[0].Replica)

	writable, err := loc.GetBuckets(ctx, "Order", map[string]any{}, true, false)
	require.NoError(t, err)
	require.Len(t, writable, 1)
	require.Equal(t, uint32(0), writable[0].Replica)
}

func TestGetBuckets_RoutingIsDeterministicAcrossCalls(t *testing.T) {
	ctx := context.Background()
	db, reg := newHarness(t, 4)
	reg.RegisterClass("order", "Order", &schema.Model{TableName: "order", Sharded: true}, nil, nil)

	_, err := db.Driver().Create(ctx, proto.TopologyTableName, map[string]any{
		"name": "order", "version": uint64(0), "status": int(proto.TopologyReady), "shards": uint32(4), "replicas": uint32(0),
	})
	require.NoError(t, err)

	loc := buildLocator(db, reg)
	payload := map[string]any{"id": 42}

	first, err := loc.GetBuckets(ctx, "Order", payload, true, false)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := loc.GetBuckets(ctx, "Order", payload, true, false)
	require.NoError(t, err)
	require.Len(t, second, 1)

	require.Equal(t, first[0].ID, second[0].ID)
	require.Equal(t, first[0].Shard, second[0].Shard)
}

func TestGetBuckets_CongruentKeysRouteToSameShard(t *testing.T) {
	ctx := context.Background()
	db, reg := newHarness(t, 4)
	reg.RegisterClass("order", "Order", &schema.Model{TableName: "order", Sharded: true}, nil, nil)

	_, err := db.Driver().Create(ctx, proto.TopologyTableName, map[string]any{
		"name": "order", "version": uint64(0), "status": int(proto.TopologyReady), "shards": uint32(4), "replicas": uint32(0),
	})
	require.NoError(t, err)

	loc := buildLocator(db, reg)

	// 7 mod 4 == 3 mod 4 == 3: both keys must land on the same bucket.
	a, err := loc.GetBuckets(ctx, "Order", map[string]any{"id": 7}, true, false)
	require.NoError(t, err)
	b, err := loc.GetBuckets(ctx, "Order", map[string]any{"id": 3}, true, false)
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Equal(t, a[0].Shard, b[0].Shard)
	require.Equal(t, a[0].ID, b[0].ID)
}

func TestGetBuckets_AmbiguousWithoutMultipleFlag(t *testing.T) {
	ctx := context.Background()
	db, reg := newHarness(t, 4)
	reg.RegisterClass("order", "Order", &schema.Model{TableName: "order", Sharded: true}, nil, nil)

	_, err := db.Driver().Create(ctx, proto.TopologyTableName, map[string]any{
		"name": "order", "version": uint64(0), "status": int(proto.TopologyReady), "shards": uint32(4), "replicas": uint32(0),
	})
	require.NoError(t, err)

	loc := buildLocator(db, reg)
	// no key in the payload means every shard still matches; multiple=false
	// over more than one surviving bucket must be rejected.
	_, err = loc.GetBuckets(ctx, "Order", map[string]any{}, true, false)
	require.Error(t, err)
}
