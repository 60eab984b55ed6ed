package runtime

import (
	"fmt"
	"strconv"
	"strings"
)

// AsNumber converts a pin value to float64.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// AsBool converts a pin value to bool. Strings are true only for "true".
func AsBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	case nil:
		return false
	}
	if n, ok := AsNumber(v); ok {
		return n != 0
	}
	return true
}

// AsString converts a pin value to its display string.
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// AsArray converts a pin value to a slice. A nil value is an empty slice
// and a scalar becomes a single element slice.
func AsArray(v any) []any {
	switch a := v.(type) {
	case nil:
		return []any{}
	case []any:
		return a
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out
	case []Player:
		out := make([]any, len(a))
		for i, p := range a {
			out[i] = p.Username
		}
		return out
	}
	return []any{v}
}
