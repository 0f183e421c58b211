// Package errors defines the sentinel error values surfaced by the
// sharding core, plus a small classifier so callers across process
// boundaries can recover the error kind without type-asserting on an
// unexported type.
package errors

import (
	"errors"

	blobstoreerrors "github.com/cubefs/cubefs/blobstore/util/errors"
)

var (
	// ErrNotFound is returned by findOrFail when no row matches the query.
	ErrNotFound = errors.New("not found")

	// ErrNoAvailableStorage is returned by the storage assigner when no
	// storage can host a new bucket of a segment without violating the
	// one-bucket-per-name-per-storage invariant.
	ErrNoAvailableStorage = errors.New("no available storage")

	// ErrAmbiguousRouting is returned when multiple=false left more than
	// one bucket after filtering.
	ErrAmbiguousRouting = errors.New("ambiguous routing: multiple buckets matched")

	// ErrInvalidType is returned by schema sync when a declared property
	// type has no backend-native mapping.
	ErrInvalidType = errors.New("invalid property type")

	// ErrSegmentNotFound is returned by the schema registry when a class
	// is not registered, or when a segment name is absent and not created.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrStorageNotFound is returned when a bucket references a storage id
	// the embedder's Database cannot resolve to a driver.
	ErrStorageNotFound = errors.New("storage not found")

	// ErrListenerRejected is returned by drivers that cannot express
	// transactional emission when registerChanges is called.
	ErrListenerRejected = errors.New("backend does not support change subscriptions")
)

// ErrorKind classifies a sentinel error for callers that want to branch
// on category rather than on the exact sentinel (e.g. retry policy).
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindNoAvailableStorage
	KindAmbiguousRouting
	KindInvalidType
	KindBackend
)

// Kind classifies err, unwrapping through any blobstore/util/errors
// wrapping applied by BackendError.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoAvailableStorage):
		return KindNoAvailableStorage
	case errors.Is(err, ErrAmbiguousRouting):
		return KindAmbiguousRouting
	case errors.Is(err, ErrInvalidType):
		return KindInvalidType
	default:
		return KindBackend
	}
}

// BackendError wraps an error returned verbatim by a storage driver,
// attaching the operation that failed without losing errors.Is/As
// matchability on the underlying cause.
func BackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return blobstoreerrors.Info(err, op)
}
