package transform

import (
	"reflect"
	"testing"
)

func runJSONPath(t *testing.T, config map[string]any, event Event) map[string]any {
	t.Helper()
	fn := compileJSONPath(config)
	out, err := fn(event)
	if err != nil {
		t.Fatalf("jsonpath failed: %v", err)
	}
	payload, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", out)
	}
	return payload
}

func TestJSONPathManyResultsBecomeArray(t *testing.T) {
	config := map[string]any{
		"mapping": map[string]any{"names": "$.properties.items[*].name"},
	}
	payload := runJSONPath(t, config, sampleEvent())
	want := []any{"a", "b"}
	if !reflect.DeepEqual(payload["names"], want) {
		t.Fatalf("expected %v, got %v", want, payload["names"])
	}
}

func TestJSONPathSingleResultStaysScalar(t *testing.T) {
	config := map[string]any{
		"mapping": map[string]any{"who": "$.properties.userId"},
	}
	payload := runJSONPath(t, config, sampleEvent())
	if payload["who"] != "u1" {
		t.Fatalf("expected scalar u1, got %v", payload["who"])
	}
}

func TestJSONPathNoResultUsesDefaultOrNull(t *testing.T) {
	config := map[string]any{
		"mapping": map[string]any{
			"plan":  "$.properties.plan",
			"ghost": "$.properties.ghost",
		},
		"defaults": map[string]any{"plan": "free"},
	}
	payload := runJSONPath(t, config, sampleEvent())
	if payload["plan"] != "free" {
		t.Fatalf("expected default, got %v", payload["plan"])
	}
	value, present := payload["ghost"]
	if !present || value != nil {
		t.Fatalf("expected explicit null for ghost, got (%v, %v)", value, present)
	}
}

func TestJSONPathInvalidExpressionFailsAtCall(t *testing.T) {
	config := map[string]any{
		"mapping": map[string]any{"bad": "$.properties[unclosed"},
	}
	fn := compileJSONPath(config)
	if _, err := fn(sampleEvent()); err == nil {
		t.Fatal("expected error for invalid jsonpath")
	}
}

func TestJSONPathMissingMappingFailsAtCall(t *testing.T) {
	fn := compileJSONPath(map[string]any{})
	if _, err := fn(sampleEvent()); err == nil {
		t.Fatal("expected error for missing mapping")
	}
}
