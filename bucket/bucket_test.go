package bucket

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basis-company/sharding/kvstore"
	"github.com/basis-company/sharding/localdriver"
	"github.com/basis-company/sharding/proto"
)

func newDriver(t *testing.T) proto.Driver {
	ctx := context.Background()
	d, err := localdriver.New(ctx, kvstore.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, d.SyncSchema(ctx, nil, &testSegment{}))
	return d
}

// testSegment declares just the bucket table so driver tests don't need
// a real Schema Registry.
type testSegment struct{}

func (testSegment) Fullname() string      { return "test" }
func (testSegment) Tables() []string      { return []string{proto.BucketTableName} }
func (testSegment) Models() []proto.Model { return []proto.Model{testModel{}} }

type testModel struct{}

func (testModel) Table() string                 { return proto.BucketTableName }
func (testModel) IsSharded() bool                { return false }
func (testModel) Properties() []proto.Property   { return nil }
func (testModel) Indexes() []proto.Index         { return nil }
func (testModel) SupportsBootstrap() bool        { return false }
func (testModel) Bootstrap(context.Context, proto.Database) error { return nil }

func TestGenerate_MaterializesShardsTimesReplicasPlusOne(t *testing.T) {
	ctx := context.Background()
	driver := newDriver(t)

	topo := &proto.Topology{Name: "orders", Version: 1, Shards: 2, Replicas: 1}
	rows, err := Generate(ctx, driver, topo)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	loaded, err := LoadByName(ctx, driver, "orders")
	require.NoError(t, err)
	require.Len(t, loaded, 4)
}

func TestGenerate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	driver := newDriver(t)

	topo := &proto.Topology{Name: "orders", Version: 1, Shards: 1, Replicas: 0}
	first, err := Generate(ctx, driver, topo)
	require.NoError(t, err)
	second, err := Generate(ctx, driver, topo)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
}

func TestPersist_WritesStorageAssignment(t *testing.T) {
	ctx := context.Background()
	driver := newDriver(t)

	topo := &proto.Topology{Name: "orders", Version: 1, Shards: 1, Replicas: 0}
	rows, err := Generate(ctx, driver, topo)
	require.NoError(t, err)

	rows[0].Storage = 7
	require.NoError(t, Persist(ctx, driver, rows[0]))

	reloaded, err := LoadByName(ctx, driver, "orders")
	require.NoError(t, err)
	require.Equal(t, uint64(7), reloaded[0].Storage)
}
