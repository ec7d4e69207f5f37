package content

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FormatValue renders a data value as the string used for comparisons and
// template substitution. nil renders as the empty string; maps and slices
// render as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case map[string]any, Data, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Lookup resolves a dotted path ("address.city") inside d.
// The second result is false when any segment is missing.
func (d Data) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		seg := path[start:i]
		start = i + 1
		var m map[string]any
		switch node := cur.(type) {
		case map[string]any:
			m = node
		case Data:
			m = node
		default:
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
