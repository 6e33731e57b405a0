package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// formatReply renders the materialized reply. The default path walks
// the value once and stringifies non-integer numbers with full
// precision, because the host's wire format may truncate floats. JSON
// and msgpack keep native numbers.
func formatReply(v interface{}, f Format) (interface{}, error) {
	switch f {
	case FormatJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("FORMAT: %w", err)
		}
		return string(b), nil
	case FormatMsgpack:
		b, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("FORMAT: %w", err)
		}
		return b, nil
	default:
		return stringifyFloats(v), nil
	}
}

func stringifyFloats(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return x
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = stringifyFloats(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = stringifyFloats(e)
		}
		return out
	default:
		return v
	}
}

func encodeJSONList(v []interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
