package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// compileTemplate supports a single "template" string or a named "templates"
// object. Templates render against the event map with a small helper
// vocabulary; they cannot reach anything else.
func compileTemplate(config map[string]any) Func {
	if raw, ok := config["template"].(string); ok {
		tmpl, err := template.New("transform").Funcs(templateFuncs()).Parse(raw)
		if err != nil {
			return errorFunc(fmt.Errorf("parsing template: %w", err))
		}
		return func(e Event) (any, error) {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, e.Map()); err != nil {
				return nil, fmt.Errorf("rendering template: %w", err)
			}
			return parseMaybeJSON(buf.String()), nil
		}
	}

	if rawSet, ok := config["templates"].(map[string]any); ok && len(rawSet) > 0 {
		parsed := make(map[string]*template.Template, len(rawSet))
		for name, value := range rawSet {
			text, ok := value.(string)
			if !ok {
				return errorFunc(fmt.Errorf("template %q is not a string", name))
			}
			tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(text)
			if err != nil {
				return errorFunc(fmt.Errorf("parsing template %q: %w", name, err))
			}
			parsed[name] = tmpl
		}
		return func(e Event) (any, error) {
			data := e.Map()
			out := make(map[string]any, len(parsed))
			for name, tmpl := range parsed {
				var buf bytes.Buffer
				if err := tmpl.Execute(&buf, data); err != nil {
					return nil, fmt.Errorf("rendering template %q: %w", name, err)
				}
				out[name] = parsePrefixedJSON(buf.String())
			}
			return out, nil
		}
	}

	return errorFunc(errors.New("template config requires template or templates"))
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": formatDate,
		"toJSON":     toJSON,
		"parseJSON":  parseJSONValue,
		"get":        templateGet,
	}
}

func formatDate(value any, layout string) string {
	t, ok := coerceTime(value)
	if !ok {
		return fmt.Sprint(value)
	}
	return t.UTC().Format(layout)
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func parseJSONValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func templateGet(data any, path string) any {
	value, _ := GetPath(data, path)
	return value
}

func coerceTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseMaybeJSON returns the parsed value when the rendered text is valid
// JSON, otherwise the raw string.
func parseMaybeJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// parsePrefixedJSON parses only values that look like JSON documents; plain
// strings stay strings.
func parsePrefixedJSON(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}
