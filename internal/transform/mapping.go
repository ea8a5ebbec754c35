package transform

import "errors"

// compileMapping projects event paths onto output keys. Source shapes: a
// string path, an array of fallback paths (first hit wins), or an object
// {path, default}. includeOriginal merges unclaimed event fields and "fixed"
// overlays constants last, so fixed values always win.
func compileMapping(config map[string]any) Func {
	mapping, ok := config["mapping"].(map[string]any)
	if !ok {
		return errorFunc(errors.New("mapping config requires a mapping"))
	}
	fixed, _ := config["fixed"].(map[string]any)
	includeOriginal := config["includeOriginal"]

	return func(e Event) (any, error) {
		data := e.Map()
		out := map[string]any{}
		for target, source := range mapping {
			if value, ok := resolveMappingSource(data, source); ok {
				setPath(out, target, value)
			}
		}
		mergeOriginal(out, data, includeOriginal)
		for key, value := range fixed {
			setPath(out, key, deepCopyValue(value))
		}
		return out, nil
	}
}

func resolveMappingSource(data map[string]any, source any) (any, bool) {
	switch src := source.(type) {
	case string:
		return GetPath(data, src)
	case []any:
		for _, candidate := range src {
			path, ok := candidate.(string)
			if !ok {
				continue
			}
			if value, ok := GetPath(data, path); ok {
				return value, true
			}
		}
		return nil, false
	case map[string]any:
		path, _ := src["path"].(string)
		if value, ok := GetPath(data, path); ok {
			return value, true
		}
		if def, ok := src["default"]; ok {
			return deepCopyValue(def), true
		}
		return nil, false
	default:
		return nil, false
	}
}

// mergeOriginal copies event fields into out without overwriting anything
// already mapped. include=true takes every top-level field; an array takes
// only the named ones.
func mergeOriginal(out, data map[string]any, include any) {
	switch inc := include.(type) {
	case bool:
		if !inc {
			return
		}
		for key, value := range data {
			if _, exists := out[key]; !exists {
				out[key] = value
			}
		}
	case []any:
		for _, field := range inc {
			name, ok := field.(string)
			if !ok {
				continue
			}
			if _, exists := out[name]; exists {
				continue
			}
			if value, ok := GetPath(data, name); ok {
				out[name] = value
			}
		}
	}
}
