package transform

import (
	"reflect"
	"testing"
)

func runScript(t *testing.T, script string, event Event) map[string]any {
	t.Helper()
	fn := compileScript(map[string]any{"script": script}, newTestLogger())
	out, err := fn(event)
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	payload, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", out)
	}
	return payload
}

func TestScriptFieldMappingAndIncludeOriginal(t *testing.T) {
	script := `{
		"fieldMapping": {"who": "properties.userId"},
		"includeOriginal": ["eventName"]
	}`
	payload := runScript(t, script, sampleEvent())
	if payload["who"] != "u1" {
		t.Fatalf("fieldMapping missed: %v", payload)
	}
	if payload["eventName"] != "order.paid" {
		t.Fatalf("includeOriginal missed: %v", payload)
	}
	if _, ok := payload["id"]; ok {
		t.Fatalf("unnamed fields must not merge: %v", payload)
	}
}

func TestScriptGetSetFormatTimestamp(t *testing.T) {
	script := `{
		"operations": [
			{"type": "get", "args": ["$event.properties.amount"], "target": "amt"},
			{"type": "set", "args": ["manual"], "target": "source"},
			{"type": "format", "args": ["{0} paid {1}", "$event.properties.userId", "$result.amt"], "target": "line"},
			{"type": "timestamp", "args": ["unix"], "target": "ts"}
		]
	}`
	payload := runScript(t, script, sampleEvent())
	if payload["amt"] != float64(500) {
		t.Fatalf("get failed: %v", payload)
	}
	if payload["source"] != "manual" {
		t.Fatalf("set failed: %v", payload)
	}
	if payload["line"] != "u1 paid 500" {
		t.Fatalf("format failed: %v", payload["line"])
	}
	if payload["ts"] != int64(1704067200) {
		t.Fatalf("timestamp failed: %v (%T)", payload["ts"], payload["ts"])
	}
}

func TestScriptPickOmitMerge(t *testing.T) {
	script := `{
		"fieldMapping": {"who": "properties.userId", "amt": "properties.amount", "extra": "id"},
		"operations": [
			{"type": "omit", "args": ["extra"]},
			{"type": "merge", "args": [{"channel": "web"}]},
			{"type": "pick", "args": ["$event.properties", "userId"], "target": "slim"}
		]
	}`
	payload := runScript(t, script, sampleEvent())
	if _, ok := payload["extra"]; ok {
		t.Fatalf("omit failed: %v", payload)
	}
	if payload["channel"] != "web" {
		t.Fatalf("merge failed: %v", payload)
	}
	slim, ok := payload["slim"].(map[string]any)
	if !ok || slim["userId"] != "u1" || len(slim) != 1 {
		t.Fatalf("pick failed: %v", payload["slim"])
	}
}

func TestScriptOmitHonorsSourceSelector(t *testing.T) {
	script := `{
		"operations": [
			{"type": "omit", "args": ["$event.properties", "items"], "target": "slim"}
		]
	}`
	event := sampleEvent()
	payload := runScript(t, script, event)
	slim, ok := payload["slim"].(map[string]any)
	if !ok {
		t.Fatalf("expected object at slim, got %v", payload["slim"])
	}
	if _, ok := slim["items"]; ok {
		t.Fatalf("items should be omitted: %v", slim)
	}
	if slim["userId"] != "u1" || slim["amount"] != float64(500) {
		t.Fatalf("remaining fields should survive: %v", slim)
	}
	if _, ok := event.Properties["items"]; !ok {
		t.Fatal("omit must not reach back into the source event")
	}
}

func TestScriptOmitWithoutTargetReplacesResult(t *testing.T) {
	script := `{
		"fieldMapping": {"who": "properties.userId", "amt": "properties.amount"},
		"operations": [
			{"type": "omit", "args": ["$event.properties", "items", "amount"]}
		]
	}`
	payload := runScript(t, script, sampleEvent())
	want := map[string]any{"userId": "u1"}
	if !reflect.DeepEqual(payload, want) {
		t.Fatalf("expected result replaced with pruned source, got %v", payload)
	}
}

func TestScriptPickWithoutTargetReplacesResult(t *testing.T) {
	script := `{
		"fieldMapping": {"who": "properties.userId", "amt": "properties.amount"},
		"operations": [
			{"type": "pick", "args": ["who"]}
		]
	}`
	payload := runScript(t, script, sampleEvent())
	want := map[string]any{"who": "u1"}
	if !reflect.DeepEqual(payload, want) {
		t.Fatalf("expected result replaced with picked keys, got %v", payload)
	}
}

func TestScriptFilterMapIncludes(t *testing.T) {
	event := sampleEvent()
	event.Properties["tags"] = []any{"vip", "beta"}
	script := `{
		"operations": [
			{"type": "filter", "args": ["$event.properties.items", "name", "a"], "target": "onlyA"},
			{"type": "map", "args": ["$event.properties.items", "name"], "target": "names"},
			{"type": "includes", "args": ["$event.properties.tags", "vip"], "target": "isVip"}
		]
	}`
	payload := runScript(t, script, event)

	onlyA, ok := payload["onlyA"].([]any)
	if !ok || len(onlyA) != 1 {
		t.Fatalf("filter failed: %v", payload["onlyA"])
	}
	names, ok := payload["names"].([]any)
	if !ok || !reflect.DeepEqual(names, []any{"a", "b"}) {
		t.Fatalf("map failed: %v", payload["names"])
	}
	if payload["isVip"] != true {
		t.Fatalf("includes failed: %v", payload["isVip"])
	}
}

func TestScriptParseJSON(t *testing.T) {
	event := sampleEvent()
	event.Properties["blob"] = `{"inner":7}`
	script := `{
		"operations": [
			{"type": "parseJSON", "args": ["$event.properties.blob"], "target": "parsed"}
		]
	}`
	payload := runScript(t, script, event)
	parsed, ok := payload["parsed"].(map[string]any)
	if !ok || parsed["inner"] != float64(7) {
		t.Fatalf("parseJSON failed: %v", payload["parsed"])
	}
}

func TestScriptUnknownOperationSkipped(t *testing.T) {
	script := `{
		"fieldMapping": {"who": "properties.userId"},
		"operations": [
			{"type": "eval", "args": ["process.exit(1)"], "target": "x"},
			{"type": "set", "args": ["after"], "target": "marker"}
		]
	}`
	payload := runScript(t, script, sampleEvent())
	if _, ok := payload["x"]; ok {
		t.Fatalf("unknown operation must not produce output: %v", payload)
	}
	if payload["marker"] != "after" {
		t.Fatalf("operations after an unknown one must still run: %v", payload)
	}
}

func TestScriptLiteralArgsAreCopied(t *testing.T) {
	config := map[string]any{
		"script": map[string]any{
			"operations": []any{
				map[string]any{"type": "set", "args": []any{map[string]any{"k": "v"}}, "target": "obj"},
			},
		},
	}
	fn := compileScript(config, newTestLogger())

	first, err := fn(sampleEvent())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first.(map[string]any)["obj"].(map[string]any)["k"] = "mutated"

	second, err := fn(sampleEvent())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.(map[string]any)["obj"].(map[string]any)["k"] != "v" {
		t.Fatal("literal args must be copied per call")
	}
}

func TestScriptRejectsNonJSONConfig(t *testing.T) {
	fn := compileScript(map[string]any{"script": 42}, newTestLogger())
	if _, err := fn(sampleEvent()); err == nil {
		t.Fatal("expected error for non-JSON script config")
	}
}
