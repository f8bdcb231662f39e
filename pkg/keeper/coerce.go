package keeper

import (
	"encoding/json"
	"math/big"
)

// Call results arrive as loosely-typed tuples (JSON numbers, strings, nested
// arrays). The helpers below coerce individual tuple slots; a false second
// return means the slot did not hold the expected shape.

func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func AsBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// AsBigInt accepts base-10 strings, JSON numbers and json.Number. Token
// amounts travel as strings to survive 256-bit ranges.
func AsBigInt(v any) (*big.Int, bool) {
	switch t := v.(type) {
	case string:
		n, ok := new(big.Int).SetString(t, 10)
		return n, ok
	case json.Number:
		n, ok := new(big.Int).SetString(t.String(), 10)
		return n, ok
	case float64:
		return big.NewInt(int64(t)), true
	case int:
		return big.NewInt(int64(t)), true
	case int64:
		return big.NewInt(t), true
	case *big.Int:
		return t, true
	default:
		return nil, false
	}
}

func AsUint8(v any) (uint8, bool) {
	n, ok := AsBigInt(v)
	if !ok || !n.IsUint64() || n.Uint64() > 255 {
		return 0, false
	}
	return uint8(n.Uint64()), true
}

func AsStringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
