package schema

import (
	"github.com/basis-company/sharding/errors"
	"github.com/basis-company/sharding/proto"
)

// TypeMap implements spec.md §4.4 step 2's typeMap: the backend-native
// column type a declared PropertyType materializes to. Any type other
// than the three named ones is a fatal schema error.
func TypeMap(t proto.PropertyType) (string, error) {
	switch t {
	case proto.PropertyInt:
		return "uint", nil
	case proto.PropertyString:
		return "string", nil
	case proto.PropertyArray:
		return "any", nil
	default:
		return "", errors.ErrInvalidType
	}
}
