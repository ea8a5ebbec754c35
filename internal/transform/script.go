package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// scriptProgram is the declarative transform AST. There is no code here to
// evaluate: operations come from a closed allow-list and argument references
// can only address the event and the result document.
type scriptProgram struct {
	Operations      []scriptOp        `json:"operations"`
	FieldMapping    map[string]string `json:"fieldMapping"`
	IncludeOriginal any               `json:"includeOriginal"`
}

type scriptOp struct {
	Type   string `json:"type"`
	Args   []any  `json:"args"`
	Target string `json:"target"`
}

const (
	eventRef  = "$event"
	resultRef = "$result"
)

// compileScript builds the result in three stages: fieldMapping projections,
// includeOriginal merge, then the operations in order. Unknown operation
// types are skipped with a warning; malformed arguments fail the transform.
func compileScript(config map[string]any, logg *logger.Logger) Func {
	program, err := decodeScript(config["script"])
	if err != nil {
		return errorFunc(err)
	}

	return func(e Event) (any, error) {
		data := e.Map()
		result := map[string]any{}
		for target, source := range program.FieldMapping {
			if value, ok := GetPath(data, source); ok {
				setPath(result, target, value)
			}
		}
		mergeOriginal(result, data, program.IncludeOriginal)
		for _, op := range program.Operations {
			if err := applyScriptOp(e, data, result, op, logg); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
}

func decodeScript(raw any) (*scriptProgram, error) {
	var blob []byte
	switch v := raw.(type) {
	case string:
		blob = []byte(v)
	case map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding script config: %w", err)
		}
		blob = encoded
	default:
		return nil, errors.New("script config requires a JSON script")
	}

	var program scriptProgram
	if err := json.Unmarshal(blob, &program); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	return &program, nil
}

func applyScriptOp(e Event, data, result map[string]any, op scriptOp, logg *logger.Logger) error {
	switch op.Type {
	case "get":
		if op.Target == "" {
			return fmt.Errorf("script op get requires a target")
		}
		value := resolveScriptArg(argAt(op, 0), data, result)
		setPath(result, op.Target, value)

	case "set":
		if op.Target == "" {
			return fmt.Errorf("script op set requires a target")
		}
		setPath(result, op.Target, resolveScriptArg(argAt(op, 0), data, result))

	case "pick":
		source, keys := scriptSourceAndKeys(op, data, result)
		picked := map[string]any{}
		for _, key := range keys {
			if value, ok := source[key]; ok {
				picked[key] = value
			}
		}
		storeMapResult(result, op.Target, picked)

	case "omit":
		source, keys := scriptSourceAndKeys(op, data, result)
		pruned := deepCopyMap(source)
		for _, key := range keys {
			deletePath(pruned, key)
		}
		storeMapResult(result, op.Target, pruned)

	case "merge":
		value := resolveScriptArg(argAt(op, 0), data, result)
		merged, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("script op merge requires an object argument")
		}
		targetMap := result
		if op.Target != "" {
			existing, ok := resultMapAt(result, op.Target)
			if !ok {
				existing = map[string]any{}
				setPath(result, op.Target, existing)
			}
			targetMap = existing
		}
		for key, item := range merged {
			targetMap[key] = item
		}

	case "format":
		if op.Target == "" {
			return fmt.Errorf("script op format requires a target")
		}
		pattern, ok := argAt(op, 0).(string)
		if !ok {
			return fmt.Errorf("script op format requires a pattern string")
		}
		out := pattern
		for i := 1; i < len(op.Args); i++ {
			placeholder := fmt.Sprintf("{%d}", i-1)
			value := resolveScriptArg(op.Args[i], data, result)
			out = strings.ReplaceAll(out, placeholder, fmt.Sprint(value))
		}
		setPath(result, op.Target, out)

	case "timestamp":
		if op.Target == "" {
			return fmt.Errorf("script op timestamp requires a target")
		}
		setPath(result, op.Target, formatScriptTimestamp(e, op))

	case "parseJSON":
		if op.Target == "" {
			return fmt.Errorf("script op parseJSON requires a target")
		}
		raw, ok := resolveScriptArg(argAt(op, 0), data, result).(string)
		if !ok {
			return fmt.Errorf("script op parseJSON requires a string argument")
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return fmt.Errorf("script op parseJSON: %w", err)
		}
		setPath(result, op.Target, parsed)

	case "filter":
		if op.Target == "" {
			return fmt.Errorf("script op filter requires a target")
		}
		source, ok := resolveScriptArg(argAt(op, 0), data, result).([]any)
		if !ok {
			return fmt.Errorf("script op filter requires an array argument")
		}
		path, _ := argAt(op, 1).(string)
		want := resolveScriptArg(argAt(op, 2), data, result)
		kept := make([]any, 0, len(source))
		for _, item := range source {
			value, _ := GetPath(item, path)
			if Equal(value, want) {
				kept = append(kept, item)
			}
		}
		setPath(result, op.Target, kept)

	case "map":
		if op.Target == "" {
			return fmt.Errorf("script op map requires a target")
		}
		source, ok := resolveScriptArg(argAt(op, 0), data, result).([]any)
		if !ok {
			return fmt.Errorf("script op map requires an array argument")
		}
		path, _ := argAt(op, 1).(string)
		out := make([]any, len(source))
		for i, item := range source {
			value, _ := GetPath(item, path)
			out[i] = value
		}
		setPath(result, op.Target, out)

	case "includes":
		if op.Target == "" {
			return fmt.Errorf("script op includes requires a target")
		}
		source := resolveScriptArg(argAt(op, 0), data, result)
		candidate := resolveScriptArg(argAt(op, 1), data, result)
		setPath(result, op.Target, valueIncludes(source, candidate))

	default:
		if logg != nil {
			ctx := logg.WithFields(context.Background(), map[string]any{"operation": op.Type})
			logg.Warn(ctx, "unknown script operation skipped")
		}
	}
	return nil
}

// resolveScriptArg turns $event / $result references into values; anything
// else is a literal. Literal composites are copied so operations can never
// alias config into the output.
func resolveScriptArg(arg any, data, result map[string]any) any {
	ref, ok := arg.(string)
	if !ok {
		return deepCopyValue(arg)
	}
	switch {
	case ref == eventRef:
		return data
	case ref == resultRef:
		return result
	case strings.HasPrefix(ref, eventRef+"."):
		value, _ := GetPath(data, strings.TrimPrefix(ref, eventRef+"."))
		return value
	case strings.HasPrefix(ref, resultRef+"."):
		value, _ := GetPath(result, strings.TrimPrefix(ref, resultRef+"."))
		return value
	default:
		return ref
	}
}

func argAt(op scriptOp, i int) any {
	if i < len(op.Args) {
		return op.Args[i]
	}
	return nil
}

// scriptSourceAndKeys splits pick/omit arguments: an optional leading
// reference selects the source map (default $result); the remaining string or
// array arguments are the keys.
func scriptSourceAndKeys(op scriptOp, data, result map[string]any) (map[string]any, []string) {
	source := result
	args := op.Args
	if len(args) > 0 {
		if ref, ok := args[0].(string); ok && strings.HasPrefix(ref, "$") {
			if resolved, ok := resolveScriptArg(ref, data, result).(map[string]any); ok {
				source = resolved
			}
			args = args[1:]
		}
	}
	var keys []string
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			keys = append(keys, v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					keys = append(keys, s)
				}
			}
		}
	}
	return source, keys
}

// storeMapResult writes a produced map at target, or replaces the result
// document when no target is given.
func storeMapResult(result map[string]any, target string, value map[string]any) {
	if target != "" {
		setPath(result, target, value)
		return
	}
	for key := range result {
		delete(result, key)
	}
	for key, item := range value {
		result[key] = item
	}
}

func resultMapAt(result map[string]any, path string) (map[string]any, bool) {
	value, ok := GetPath(result, path)
	if !ok {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

func formatScriptTimestamp(e Event, op scriptOp) any {
	layout, _ := argAt(op, 0).(string)
	switch layout {
	case "", "rfc3339":
		return formatTimestamp(e.Timestamp)
	case "unix":
		return e.Timestamp.Unix()
	case "unixMilli":
		return e.Timestamp.UnixMilli()
	default:
		return e.Timestamp.UTC().Format(layout)
	}
}

func valueIncludes(source, candidate any) bool {
	switch src := source.(type) {
	case []any:
		for _, item := range src {
			if Equal(item, candidate) {
				return true
			}
		}
		return false
	case string:
		sub, ok := candidate.(string)
		return ok && strings.Contains(src, sub)
	default:
		return false
	}
}
