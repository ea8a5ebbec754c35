package transform

import (
	"reflect"
	"strconv"
	"strings"
)

// GetPath resolves a dotted path against nested maps and slices. Numeric
// segments index into slices. The second return reports whether the full path
// resolved.
func GetPath(data any, path string) (any, bool) {
	if path == "" {
		return data, true
	}
	current := data
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Equal reports JSON-style equality: numbers compare by value regardless of
// their Go type, composites compare deeply.
func Equal(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// setPath writes value at the dotted path, creating intermediate maps. An
// intermediate segment holding a non-map value is replaced.
func setPath(data map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := data
	for i, segment := range segments {
		if i == len(segments)-1 {
			current[segment] = value
			return
		}
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
}

// deletePath removes the leaf of a dotted path. Missing intermediates are a
// no-op.
func deletePath(data map[string]any, path string) {
	segments := strings.Split(path, ".")
	current := data
	for i, segment := range segments {
		if i == len(segments)-1 {
			delete(current, segment)
			return
		}
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
}

func deepCopyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return deepCopyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
