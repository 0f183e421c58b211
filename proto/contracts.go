package proto

import "context"

// PropertyType is the logical type a Model declares for one property;
// typeMap (schema.TypeMap) maps it onto a backend-native column type.
type PropertyType int

const (
	PropertyInt PropertyType = iota
	PropertyString
	PropertyArray
)

// Property is one declared column of a Model.
type Property struct {
	Name string
	Type PropertyType
}

// Index is one declared index of a Model.
type Index struct {
	Name   string
	Fields []string
	Unique bool
}

// Model is the Schema Registry's view of one entity type: the table it
// materializes onto, whether it shards, and its declared columns and
// indexes. Out of scope per spec.md §1 — this module only consumes it.
type Model interface {
	Table() string
	IsSharded() bool
	Properties() []Property
	Indexes() []Index
	// SupportsBootstrap reports whether Bootstrap should be invoked once
	// after first sync, per §4.4 step 4.
	SupportsBootstrap() bool
	Bootstrap(ctx context.Context, db Database) error
}

// Segment is a named group of Models that share a lifecycle and live
// together in the same bucket(s).
type Segment interface {
	Fullname() string
	Tables() []string
	Models() []Model
}

// KeyExtractor is the per-class override hook of §6: "getKey(data) ->
// int|string|null". The default behavior (absent an override) is to
// read data["id"].
type KeyExtractor func(data map[string]any) any

// DefaultKeyExtractor implements the default getKey behavior.
func DefaultKeyExtractor(data map[string]any) any {
	if data == nil {
		return nil
	}
	return data["id"]
}

// StorageCaster is the per-class override of castStorage in §4.5 step 1.
type StorageCaster func(ctx context.Context, db Database, bucket *Bucket) (uint64, error)

// SchemaRegistry is the external collaborator named in spec.md §6.
// Out of scope beyond this contract.
type SchemaRegistry interface {
	HasSegment(name string) bool
	GetSegmentByName(ctx context.Context, name string, create bool) (Segment, error)
	GetClassSegment(class string) (Segment, error)
	GetClassModel(class string) (Model, error)
	GetClassTable(class string) (string, error)
	// KeyExtractorFor returns the class's getKey override, or nil to use
	// DefaultKeyExtractor.
	KeyExtractorFor(class string) KeyExtractor
	// StorageCasterFor returns the class's castStorage override, or nil
	// to use the default least-used picker.
	StorageCasterFor(class string) StorageCaster
}

// Job is dispatched to the Database facade's job runner; Configure is
// one such job (see topology.Manager).
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Database is the external facade named in spec.md §6. This module
// depends only on the slice of it listed here.
type Database interface {
	CreateInstance(ctx context.Context, class string, row map[string]any) (any, error)
	Find(ctx context.Context, class string, query map[string]any) ([]map[string]any, error)
	FindOne(ctx context.Context, class string, query map[string]any) (map[string]any, error)
	FindOrCreate(ctx context.Context, class string, query, data map[string]any) (map[string]any, error)
	FindOrFail(ctx context.Context, class string, query map[string]any) (map[string]any, error)
	Dispatch(ctx context.Context, job Job) error
	// Driver returns the bootstrap driver holding the buckets table.
	Driver() Driver
	GetStorageDriver(storageID uint64) (Driver, error)
}

// Driver is the uniform CRUD + schema-sync + usage-reporting surface
// every storage backend exposes (spec.md §4.2). Backends that cannot
// express transactional emission still satisfy Driver; they simply do
// not implement CdcCapableDriver, and callers that need subscriptions
// type-assert for it rather than assuming every Driver has it.
type Driver interface {
	Create(ctx context.Context, table string, data map[string]any) (map[string]any, error)
	Update(ctx context.Context, table string, id any, data map[string]any) (map[string]any, error)
	Delete(ctx context.Context, table string, id any) (map[string]any, error)
	Find(ctx context.Context, table string, query map[string]any) ([]map[string]any, error)
	FindOne(ctx context.Context, table string, query map[string]any) (map[string]any, error)
	FindOrFail(ctx context.Context, table string, query map[string]any) (map[string]any, error)
	FindOrCreate(ctx context.Context, table string, query, data map[string]any) (map[string]any, error)
	HasTable(ctx context.Context, table string) (bool, error)
	SyncSchema(ctx context.Context, db Database, segment Segment) error
	GetUsage(ctx context.Context) (int64, error)
}

// CdcCapableDriver widens Driver with the change-log operations of
// §4.2/§4.6. A backend that cannot host transactional emission must
// not implement this interface; the locator and assigner never assume
// it, and only mutating callers that need subscriptions check for it
// with a type assertion (the "capability-based driver polymorphism"
// of §9).
type CdcCapableDriver interface {
	Driver
	RegisterChanges(ctx context.Context, table, listener string) error
	GetChanges(ctx context.Context, listener string, limit int) ([]Change, error)
	AckChanges(ctx context.Context, changes []Change) error
	SetContext(ctx context.Context, values map[string]any)
}
