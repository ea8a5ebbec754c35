package transform

import (
	"errors"
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// compileJSONPath runs one query per output key. One result stores the
// scalar, several store the array, none stores the configured default or
// explicit null.
func compileJSONPath(config map[string]any) Func {
	mapping, ok := config["mapping"].(map[string]any)
	if !ok || len(mapping) == 0 {
		return errorFunc(errors.New("jsonpath config requires a mapping"))
	}
	defaults, _ := config["defaults"].(map[string]any)

	compiled := make(map[string]jp.Expr, len(mapping))
	for key, value := range mapping {
		exprText, ok := value.(string)
		if !ok {
			return errorFunc(fmt.Errorf("jsonpath mapping %q is not a string", key))
		}
		expr, err := jp.ParseString(exprText)
		if err != nil {
			return errorFunc(fmt.Errorf("parsing jsonpath %q: %w", key, err))
		}
		compiled[key] = expr
	}

	return func(e Event) (any, error) {
		data := e.Map()
		out := make(map[string]any, len(compiled))
		for key, expr := range compiled {
			results := expr.Get(data)
			switch len(results) {
			case 0:
				if value, ok := defaults[key]; ok {
					out[key] = deepCopyValue(value)
				} else {
					out[key] = nil
				}
			case 1:
				out[key] = results[0]
			default:
				out[key] = results
			}
		}
		return out, nil
	}
}
