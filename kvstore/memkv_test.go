package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.CreateColumn("t"))

	_, err := s.Get(ctx, "t", []byte("a"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "t", []byte("a"), []byte("1")))
	v, err := s.Get(ctx, "t", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, s.Delete(ctx, "t", []byte("a")))
	_, err = s.Get(ctx, "t", []byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_SetWithoutColumnFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	err := s.Set(ctx, "missing", []byte("a"), []byte("1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_ListOrdersByKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.CreateColumn("t"))
	require.NoError(t, s.Set(ctx, "t", []byte("3"), []byte("c")))
	require.NoError(t, s.Set(ctx, "t", []byte("1"), []byte("a")))
	require.NoError(t, s.Set(ctx, "t", []byte("2"), []byte("b")))

	reader := s.List(ctx, "t", nil)
	defer reader.Close()

	var keys []string
	for {
		k, _, ok := reader.ReadNext()
		if !ok {
			break
		}
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"1", "2", "3"}, keys)
}

func TestMemStore_WriteBatchCreatesMissingColumns(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	batch := s.NewWriteBatch()
	batch.Put("fresh", []byte("k"), []byte("v"))
	require.NoError(t, s.Write(ctx, batch))

	require.True(t, s.HasColumn("fresh"))
	v, err := s.Get(ctx, "fresh", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestMemStore_WriteBatchDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.CreateColumn("t"))
	require.NoError(t, s.Set(ctx, "t", []byte("k"), []byte("v")))

	batch := s.NewWriteBatch()
	batch.Delete("t", []byte("k"))
	require.NoError(t, s.Write(ctx, batch))

	_, err := s.Get(ctx, "t", []byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}
