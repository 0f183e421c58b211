// Package idgen allocates the monotonic counters the sharding core
// needs: row ids for tables whose rows arrive without one (bucket,
// topology) and per-storage change seq numbers. It is grounded on master/idgenerator's Alloc/allocArgs
// shape, with the raft propose/apply split removed — this module is a
// library embedded in one process (spec.md §5), not a consensus
// member, so the counter is advanced directly under a mutex instead of
// through a replicated log.
package idgen

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/basis-company/sharding/kvstore"
)

var countersCF = kvstore.CF("sharding_counters")

// Generator allocates a contiguous range of ids for a named counter.
type Generator interface {
	// Alloc returns [base, base+count) reserved for name, persisting the
	// new counter value before returning.
	Alloc(ctx context.Context, name string, count int) (base uint64, err error)
	// Next reserves one id with Alloc(ctx, name, 1) and returns that
	// base plus one, so the ids Next hands out for a name start at 1.
	Next(ctx context.Context, name string) (uint64, error)
}

type generator struct {
	store kvstore.Store
	mu    sync.Mutex
}

// NewGenerator returns a Generator backed by store, creating its
// counters column family if absent.
func NewGenerator(ctx context.Context, store kvstore.Store) (Generator, error) {
	if err := store.CreateColumn(countersCF); err != nil {
		return nil, err
	}
	return &generator{store: store}, nil
}

type counterState struct {
	Current uint64 `json:"current"`
}

func (g *generator) Alloc(ctx context.Context, name string, count int) (uint64, error) {
	span := trace.SpanFromContextSafe(ctx)
	if count <= 0 {
		count = 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	current, err := g.load(ctx, name)
	if err != nil {
		return 0, err
	}

	base := current
	newCurrent := current + uint64(count)
	if err := g.save(ctx, name, newCurrent); err != nil {
		span.Errorf("idgen: persist counter %q failed: %v", name, err)
		return 0, err
	}

	span.Debugf("idgen: alloc name=%s base=%d new=%d", name, base, newCurrent)
	return base, nil
}

func (g *generator) Next(ctx context.Context, name string) (uint64, error) {
	base, err := g.Alloc(ctx, name, 1)
	if err != nil {
		return 0, err
	}
	return base + 1, nil
}

func (g *generator) load(ctx context.Context, name string) (uint64, error) {
	raw, err := g.store.Get(ctx, countersCF, []byte(name))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	var st counterState
	if err := json.Unmarshal(raw, &st); err != nil {
		return 0, err
	}
	return st.Current, nil
}

func (g *generator) save(ctx context.Context, name string, current uint64) error {
	raw, err := json.Marshal(counterState{Current: current})
	if err != nil {
		return err
	}
	return g.store.Set(ctx, countersCF, []byte(name), raw)
}
