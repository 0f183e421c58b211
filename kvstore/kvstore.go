// Package kvstore is the column-family key/value abstraction every
// local storage backend in this module is built on, grounded on
// common/kvstore's Store/CF/WriteBatch contract. Unlike the teacher's
// rocksdb-backed implementation (which binds to a CGO native library
// this module cannot assume is present — see DESIGN.md), the only
// engine shipped here is a pure-Go in-memory one, so that the
// reference Driver (localdriver) is usable and testable anywhere this
// module is imported.
package kvstore

import (
	"context"
	"errors"
)

// CF names a column family: a table's keyspace within one Store.
type CF string

var ErrNotFound = errors.New("kvstore: key not found")

// WriteBatch accumulates Put/Delete operations across one or more
// column families for atomic commit via Store.Write. This is the
// "single backend transaction" the Change Log's transactional emit
// path (spec.md §4.6) is built on: the mutated row and every listener's
// Change row land in one batch.
type WriteBatch interface {
	Put(col CF, key, value []byte)
	Delete(col CF, key []byte)
}

// ListReader iterates a column family in key order.
type ListReader interface {
	ReadNext() (key []byte, value []byte, ok bool)
	Close()
}

// Store is the uniform KV surface a local driver implementation is
// built on.
type Store interface {
	CreateColumn(col CF) error
	HasColumn(col CF) bool
	Get(ctx context.Context, col CF, key []byte) ([]byte, error)
	Set(ctx context.Context, col CF, key, value []byte) error
	Delete(ctx context.Context, col CF, key []byte) error
	List(ctx context.Context, col CF, prefix []byte) ListReader
	NewWriteBatch() WriteBatch
	Write(ctx context.Context, batch WriteBatch) error
}
