package cluster

import (
	"context"
	"fmt"

	"github.com/basis-company/sharding/proto"
)

// LoadAll returns every registered Storage, read directly from the
// bootstrap driver.
func LoadAll(ctx context.Context, driver proto.Driver) ([]*proto.Storage, error) {
	rows, err := driver.Find(ctx, proto.StorageTableName, map[string]any{})
	if err != nil {
		return nil, err
	}
	out := make([]*proto.Storage, 0, len(rows))
	for _, row := range rows {
		out = append(out, &proto.Storage{ID: toUint64(row["id"])})
	}
	return out, nil
}

// Register persists a new Storage row keyed by the given externally
// assigned id, idempotent on id so registering an already-known storage
// is a no-op. The id is honored as-is by the driver rather than
// replaced by an auto-allocated one (localdriver.Create's explicit-id
// path) since Storage ids are not this module's to assign.
func Register(ctx context.Context, driver proto.Driver, id uint64) error {
	_, err := driver.FindOrCreate(ctx, proto.StorageTableName,
		map[string]any{"id": id},
		map[string]any{"id": id},
	)
	return err
}

// LoadTopologiesByName returns every Topology row with the given
// segment name, read directly from the bootstrap driver. It is kept
// here (rather than imported from the topology package) so cluster
// does not depend on topology's provisioning machinery — only on the
// same bootstrap-resident row layout.
func LoadTopologiesByName(ctx context.Context, driver proto.Driver, name string) ([]*proto.Topology, error) {
	rows, err := driver.Find(ctx, proto.TopologyTableName, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	out := make([]*proto.Topology, 0, len(rows))
	for _, row := range rows {
		out = append(out, &proto.Topology{
			ID:       toUint64(row["id"]),
			Name:     fmt.Sprint(row["name"]),
			Version:  toUint64(row["version"]),
			Status:   proto.TopologyStatus(toUint64(row["status"])),
			Shards:   uint32(toUint64(row["shards"])),
			Replicas: uint32(toUint64(row["replicas"])),
		})
	}
	return out, nil
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
