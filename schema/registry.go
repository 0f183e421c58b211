// Package schema provides the default in-memory Schema Registry used
// by this module's own tests, plus the typeMap helper that schema
// synchronization (spec.md §4.4) shares across backends. A production
// Schema Registry is an external collaborator out of scope per
// spec.md §1 — this package exists only to make proto.SchemaRegistry
// satisfiable without a real one.
package schema

import (
	"context"
	"sync"

	"github.com/basis-company/sharding/errors"
	"github.com/basis-company/sharding/proto"
)

// Model is a minimal proto.Model implementation good enough to drive
// schema sync and the locator's shard/storage routing in tests.
type Model struct {
	TableName    string
	Sharded      bool
	PropertyList []proto.Property
	IndexList    []proto.Index
	BootstrapFn  func(ctx context.Context, db proto.Database) error
}

func (m *Model) Table() string                { return m.TableName }
func (m *Model) IsSharded() bool              { return m.Sharded }
func (m *Model) Properties() []proto.Property { return m.PropertyList }
func (m *Model) Indexes() []proto.Index       { return m.IndexList }
func (m *Model) SupportsBootstrap() bool      { return m.BootstrapFn != nil }

func (m *Model) Bootstrap(ctx context.Context, db proto.Database) error {
	if m.BootstrapFn == nil {
		return nil
	}
	return m.BootstrapFn(ctx, db)
}

// Segment is a minimal proto.Segment implementation.
type Segment struct {
	Name      string
	ModelList []*Model
}

func (s *Segment) Fullname() string { return s.Name }

func (s *Segment) Tables() []string {
	tables := make([]string, 0, len(s.ModelList))
	for _, m := range s.ModelList {
		tables = append(tables, m.TableName)
	}
	return tables
}

func (s *Segment) Models() []proto.Model {
	out := make([]proto.Model, 0, len(s.ModelList))
	for _, m := range s.ModelList {
		out = append(out, m)
	}
	return out
}

type classEntry struct {
	segment  *Segment
	model    *Model
	keyFn    proto.KeyExtractor
	casterFn proto.StorageCaster
}

// Registry is the default, process-local Schema Registry.
type Registry struct {
	mu       sync.RWMutex
	segments map[string]*Segment
	classes  map[string]*classEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		segments: make(map[string]*Segment),
		classes:  make(map[string]*classEntry),
	}
}

// RegisterClass registers class as a member of segmentName, backed by
// model. keyFn and casterFn may be nil to use the module-wide defaults.
func (r *Registry) RegisterClass(segmentName, class string, model *Model, keyFn proto.KeyExtractor, casterFn proto.StorageCaster) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seg, ok := r.segments[segmentName]
	if !ok {
		seg = &Segment{Name: segmentName}
		r.segments[segmentName] = seg
	}
	seg.ModelList = append(seg.ModelList, model)
	r.classes[class] = &classEntry{segment: seg, model: model, keyFn: keyFn, casterFn: casterFn}
}

func (r *Registry) HasSegment(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.segments[name]
	return ok
}

func (r *Registry) GetSegmentByName(ctx context.Context, name string, create bool) (proto.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.segments[name]
	if !ok {
		if !create {
			return nil, errors.ErrSegmentNotFound
		}
		seg = &Segment{Name: name}
		r.segments[name] = seg
	}
	return seg, nil
}

func (r *Registry) GetClassSegment(class string) (proto.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.classes[class]
	if !ok {
		return nil, errors.ErrSegmentNotFound
	}
	return entry.segment, nil
}

func (r *Registry) GetClassModel(class string) (proto.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.classes[class]
	if !ok {
		return nil, errors.ErrSegmentNotFound
	}
	return entry.model, nil
}

func (r *Registry) GetClassTable(class string) (string, error) {
	model, err := r.GetClassModel(class)
	if err != nil {
		return "", err
	}
	return model.Table(), nil
}

func (r *Registry) KeyExtractorFor(class string) proto.KeyExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.classes[class]
	if !ok || entry.keyFn == nil {
		return nil
	}
	return entry.keyFn
}

func (r *Registry) StorageCasterFor(class string) proto.StorageCaster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.classes[class]
	if !ok {
		return nil
	}
	return entry.casterFn
}
