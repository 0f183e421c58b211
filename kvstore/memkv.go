package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/zhangyunhao116/skipmap"
)

// memStore is the in-memory Store implementation. Each column family is
// a concurrent ordered map keyed by the raw string form of the key,
// mirroring the column-family layout of common/kvstore's rocksdb
// implementation without the CGO dependency.
type memStore struct {
	mu  sync.RWMutex
	cfs map[CF]*skipmap.FuncMap[string, []byte]
}

// NewMemStore returns a Store backed entirely by process memory.
func NewMemStore() Store {
	return &memStore{cfs: make(map[CF]*skipmap.FuncMap[string, []byte])}
}

func (s *memStore) CreateColumn(col CF) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cfs[col]; ok {
		return nil
	}
	s.cfs[col] = skipmap.NewFunc[string, []byte](func(a, b string) bool { return a < b })
	return nil
}

func (s *memStore) HasColumn(col CF) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cfs[col]
	return ok
}

func (s *memStore) column(col CF) (*skipmap.FuncMap[string, []byte], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.cfs[col]
	return m, ok
}

func (s *memStore) Get(_ context.Context, col CF, key []byte) ([]byte, error) {
	m, ok := s.column(col)
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := m.Load(string(key))
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, col CF, key, value []byte) error {
	m, ok := s.column(col)
	if !ok {
		return ErrNotFound
	}
	m.Store(string(key), value)
	return nil
}

func (s *memStore) Delete(_ context.Context, col CF, key []byte) error {
	m, ok := s.column(col)
	if !ok {
		return ErrNotFound
	}
	m.Delete(string(key))
	return nil
}

func (s *memStore) List(_ context.Context, col CF, prefix []byte) ListReader {
	m, ok := s.column(col)
	if !ok {
		return &sliceReader{}
	}
	type kv struct {
		key   string
		value []byte
	}
	var rows []kv
	m.Range(func(key string, value []byte) bool {
		if prefix == nil || strings.HasPrefix(key, string(prefix)) {
			rows = append(rows, kv{key: key, value: value})
		}
		return true
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	sr := &sliceReader{}
	for _, r := range rows {
		sr.keys = append(sr.keys, []byte(r.key))
		sr.values = append(sr.values, r.value)
	}
	return sr
}

type sliceReader struct {
	keys   [][]byte
	values [][]byte
	pos    int
}

func (r *sliceReader) ReadNext() (key, value []byte, ok bool) {
	if r.pos >= len(r.keys) {
		return nil, nil, false
	}
	key, value = r.keys[r.pos], r.values[r.pos]
	r.pos++
	return key, value, true
}

func (r *sliceReader) Close() {}

type batchOp struct {
	col    CF
	key    []byte
	value  []byte
	delete bool
}

type memBatch struct {
	ops []batchOp
}

func (b *memBatch) Put(col CF, key, value []byte) {
	b.ops = append(b.ops, batchOp{col: col, key: key, value: value})
}

func (b *memBatch) Delete(col CF, key []byte) {
	b.ops = append(b.ops, batchOp{col: col, key: key, delete: true})
}

func (s *memStore) NewWriteBatch() WriteBatch {
	return &memBatch{}
}

// Write applies every operation in batch under one lock, the in-memory
// analogue of the "single backend transaction" the CDC emit path (§4.6)
// requires: either every row in the batch is visible, or (on a panic
// mid-apply, which this implementation never raises) none of it is.
func (s *memStore) Write(_ context.Context, batch WriteBatch) error {
	b, ok := batch.(*memBatch)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		if _, exists := s.cfs[op.col]; !exists {
			s.cfs[op.col] = skipmap.NewFunc[string, []byte](func(a, b string) bool { return a < b })
		}
	}

	for _, op := range b.ops {
		m := s.cfs[op.col]
		if op.delete {
			m.Delete(string(op.key))
			continue
		}
		m.Store(string(op.key), op.value)
	}
	return nil
}
