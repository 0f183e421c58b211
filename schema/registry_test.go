package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basis-company/sharding/errors"
)

func TestRegistry_RegisterClassGroupsBySegment(t *testing.T) {
	r := NewRegistry()
	r.RegisterClass("billing", "Invoice", &Model{TableName: "invoice", Sharded: true}, nil, nil)
	r.RegisterClass("billing", "Payment", &Model{TableName: "payment", Sharded: true}, nil, nil)

	require.True(t, r.HasSegment("billing"))

	seg, err := r.GetClassSegment("Invoice")
	require.NoError(t, err)
	require.Equal(t, "billing", seg.Fullname())
	require.ElementsMatch(t, []string{"invoice", "payment"}, seg.Tables())
}

func TestRegistry_UnknownClassReturnsSegmentNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetClassModel("Ghost")
	require.ErrorIs(t, err, errors.ErrSegmentNotFound)
}

func TestRegistry_KeyExtractorDefaultsToNil(t *testing.T) {
	r := NewRegistry()
	r.RegisterClass("billing", "Invoice", &Model{TableName: "invoice"}, nil, nil)
	require.Nil(t, r.KeyExtractorFor("Invoice"))
}

func TestRegistry_CustomKeyExtractorIsReturned(t *testing.T) {
	r := NewRegistry()
	custom := func(data map[string]any) any { return data["custom_key"] }
	r.RegisterClass("billing", "Invoice", &Model{TableName: "invoice"}, custom, nil)

	extractor := r.KeyExtractorFor("Invoice")
	require.NotNil(t, extractor)
	require.Equal(t, "x", extractor(map[string]any{"custom_key": "x"}))
}

func TestRegistry_GetSegmentByNameCreatesOnDemand(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.HasSegment("fresh"))

	seg, err := r.GetSegmentByName(nil, "fresh", true)
	require.NoError(t, err)
	require.Equal(t, "fresh", seg.Fullname())
	require.True(t, r.HasSegment("fresh"))

	_, err = r.GetSegmentByName(nil, "missing", false)
	require.ErrorIs(t, err, errors.ErrSegmentNotFound)
}
