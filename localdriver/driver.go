// Package localdriver is the module's reference Driver implementation
// (spec.md §4.2), built directly on the kvstore package. It implements
// CdcCapableDriver in full, making it usable both as the bootstrap
// driver (holding the bucket/topology/storage tables) and as an
// ordinary assigned storage in tests exercising the Change Log.
//
// Grounded on master/store.Store + common/kvstore, with rows persisted
// as JSON (the same encoding master/idgenerator uses for its
// allocArgs) rather than protobuf, since there is no code generator
// invoked by this module to produce wire-compatible marshal methods.
package localdriver

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/basis-company/sharding/errors"
	"github.com/basis-company/sharding/idgen"
	"github.com/basis-company/sharding/kvstore"
	"github.com/basis-company/sharding/metrics"
	"github.com/basis-company/sharding/proto"
	"github.com/basis-company/sharding/schema"
)

// Driver is the concrete local storage backend.
type Driver struct {
	store kvstore.Store
	ids   idgen.Generator

	usage atomic.Int64

	ctxMu   sync.RWMutex
	callCtx map[string]any

	cdcMu sync.Mutex

	metaMu sync.Mutex
	synced map[string]*syncedTable
}

type syncedTable struct {
	properties   map[string]proto.PropertyType
	indexes      map[string]proto.Index
	bootstrapped bool
}

// New returns a Driver backed by store.
func New(ctx context.Context, store kvstore.Store) (*Driver, error) {
	ids, err := idgen.NewGenerator(ctx, store)
	if err != nil {
		return nil, err
	}
	return &Driver{
		store:  store,
		ids:    ids,
		synced: make(map[string]*syncedTable),
	}, nil
}

func tableCF(table string) kvstore.CF { return kvstore.CF(table) }

func (d *Driver) HasTable(_ context.Context, table string) (bool, error) {
	return d.store.HasColumn(tableCF(table)), nil
}

func (d *Driver) GetUsage(_ context.Context) (int64, error) {
	return d.usage.Load(), nil
}

func (d *Driver) SetContext(_ context.Context, values map[string]any) {
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	d.callCtx = values
}

func (d *Driver) currentContext() map[string]any {
	d.ctxMu.RLock()
	defer d.ctxMu.RUnlock()
	if d.callCtx == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(d.callCtx))
	for k, v := range d.callCtx {
		out[k] = v
	}
	return out
}

func encodeRow(row map[string]any) ([]byte, error) {
	return json.Marshal(row)
}

func decodeRow(raw []byte) (map[string]any, error) {
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// SyncSchema implements spec.md §4.4.
func (d *Driver) SyncSchema(ctx context.Context, db proto.Database, segment proto.Segment) error {
	span := trace.SpanFromContextSafe(ctx)

	type freshModel struct {
		model      proto.Model
		preExisted bool
	}
	fresh := make([]freshModel, 0, len(segment.Models()))

	for _, model := range segment.Models() {
		cf := tableCF(model.Table())
		preExisted := d.store.HasColumn(cf)
		if !preExisted {
			if err := d.store.CreateColumn(cf); err != nil {
				return errors.BackendError("syncSchema.CreateColumn", err)
			}
		}

		d.metaMu.Lock()
		st, ok := d.synced[model.Table()]
		if !ok {
			st = &syncedTable{properties: map[string]proto.PropertyType{}, indexes: map[string]proto.Index{}}
			d.synced[model.Table()] = st
		}
		for _, prop := range model.Properties() {
			if _, err := schema.TypeMap(prop.Type); err != nil {
				d.metaMu.Unlock()
				span.Errorf("syncSchema: table=%s property=%s has no backend type mapping", model.Table(), prop.Name)
				return err
			}
			if _, exists := st.properties[prop.Name]; !exists {
				st.properties[prop.Name] = prop.Type
			}
		}
		for _, idx := range model.Indexes() {
			if _, exists := st.indexes[idx.Name]; !exists {
				st.indexes[idx.Name] = idx
			}
		}
		d.metaMu.Unlock()

		fresh = append(fresh, freshModel{model: model, preExisted: preExisted})
	}

	for _, fm := range fresh {
		if fm.preExisted || !fm.model.SupportsBootstrap() {
			continue
		}
		d.metaMu.Lock()
		st := d.synced[fm.model.Table()]
		alreadyBootstrapped := st.bootstrapped
		st.bootstrapped = true
		d.metaMu.Unlock()
		if alreadyBootstrapped {
			continue
		}
		if err := fm.model.Bootstrap(ctx, db); err != nil {
			span.Errorf("syncSchema: bootstrap table=%s failed: %v", fm.model.Table(), err)
			return err
		}
	}

	span.Infof("syncSchema: segment=%s synced %d models", segment.Fullname(), len(segment.Models()))
	return nil
}

func recordOp(table, op, result string) {
	metrics.DriverOps.WithLabelValues(table, op, result).Inc()
}
