// Package proto holds the data model this module routes and persists:
// Topology, Bucket, Storage, Subscription and Change, plus the
// contracts consumed from the Schema Registry and Database facade
// that live outside this module.
package proto

// TopologyStatus is the lifecycle state of one Topology version.
type TopologyStatus int

const (
	TopologyCreating TopologyStatus = iota
	TopologyReady
	TopologyRetired
)

func (s TopologyStatus) String() string {
	switch s {
	case TopologyCreating:
		return "CREATING"
	case TopologyReady:
		return "READY"
	case TopologyRetired:
		return "RETIRED"
	default:
		return "UNKNOWN"
	}
}

// Topology is the authoritative sharding layout for one segment name at
// one version.
type Topology struct {
	ID       uint64         `json:"id"`
	Name     string         `json:"name"`
	Version  uint64         `json:"version"`
	Status   TopologyStatus `json:"status"`
	Shards   uint32         `json:"shards"`
	Replicas uint32         `json:"replicas"`
}

// DefaultTopology is the implicit layout used when a segment has never
// had a Topology provisioned for it: one shard, one replica (the
// primary only).
func DefaultTopology(name string) *Topology {
	return &Topology{
		ID:       0,
		Name:     name,
		Version:  0,
		Status:   TopologyReady,
		Shards:   1,
		Replicas: 0,
	}
}

// Bucket is one (name, version, shard, replica) cell. Storage is 0
// until the storage assigner binds it to a physical Storage id.
type Bucket struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	Version uint64 `json:"version"`
	Shard   uint32 `json:"shard"`
	Replica uint32 `json:"replica"`
	Storage uint64 `json:"storage"`
}

// IsPrimary reports whether this bucket is the writable replica.
func (b *Bucket) IsPrimary() bool {
	return b.Replica == 0
}

// IsAssigned reports whether a storage has been bound to this bucket.
func (b *Bucket) IsAssigned() bool {
	return b.Storage != 0
}

// BucketTableName is the table every Bucket row is persisted into.
const BucketTableName = "bucket"

// BucketBucketID is the reserved, compile-time bucket id that the
// buckets table itself lives in. Locating buckets requires reading the
// buckets table, which itself lives in a bucket; this constant breaks
// that recursion (§4.1's "special case").
const BucketBucketID uint64 = 1

// BootstrapBucket is the well-known bucket the locator returns without
// consulting the buckets table when asked to route the Bucket entity
// itself.
var BootstrapBucket = &Bucket{
	ID:      BucketBucketID,
	Name:    BucketTableName,
	Version: 0,
	Shard:   0,
	Replica: 0,
	Storage: BucketBucketID,
}

// Storage is one physical backend instance, addressed through one
// Driver. The core treats it as opaque beyond its id and usage metric.
type Storage struct {
	ID uint64 `json:"id"`
}

// ChangeAction is the kind of mutation a Change row records.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Subscription declares that listener wants changes from table.
// Table == "*" subscribes to every table on that storage.
type Subscription struct {
	Listener string `json:"listener"`
	Table    string `json:"table"`
}

// AllTables is the Subscription.Table wildcard value.
const AllTables = "*"

// Change is one persisted emission: one listener's view of one
// mutation, awaiting drain and ack.
type Change struct {
	Seq      uint64         `json:"seq"`
	Listener string         `json:"listener"`
	Table    string         `json:"table"`
	Action   ChangeAction   `json:"action"`
	Tuple    map[string]any `json:"tuple"`
	Context  map[string]any `json:"context"`
}

// SubscriptionTableName and ChangeTableName are the persisted layouts
// named in the external interfaces section: unique on
// (listener, table) and primary-keyed on seq respectively.
const (
	SubscriptionTableName = "sharding_subscription"
	ChangeTableName       = "sharding_change"
	TopologyTableName     = "topology"
	StorageTableName      = "storage"
)
