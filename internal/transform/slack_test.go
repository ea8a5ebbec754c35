package transform

import (
	"strings"
	"testing"
)

func TestSlackDefaultBlocks(t *testing.T) {
	fn := compileSlack(map[string]any{})
	out, err := fn(sampleEvent())
	if err != nil {
		t.Fatalf("slack transform failed: %v", err)
	}
	payload := out.(map[string]any)

	if payload["text"] != "Event: order.paid" {
		t.Fatalf("unexpected default text %v", payload["text"])
	}
	blocks, ok := payload["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected two default blocks, got %v", payload["blocks"])
	}

	header := blocks[0].(map[string]any)["text"].(map[string]any)["text"].(string)
	if !strings.Contains(header, "*order.paid*") || !strings.Contains(header, "2024-01-01T00:00:00Z") {
		t.Fatalf("unexpected header block %q", header)
	}
	body := blocks[1].(map[string]any)["text"].(map[string]any)["text"].(string)
	if !strings.HasPrefix(body, "```") || !strings.Contains(body, `"userId": "u1"`) {
		t.Fatalf("expected pretty-printed properties, got %q", body)
	}
}

func TestSlackConfiguredFields(t *testing.T) {
	config := map[string]any{
		"text":       "custom text",
		"username":   "eventgate",
		"channel":    "#ops",
		"icon_emoji": ":bell:",
		"blocks":     []any{map[string]any{"type": "divider"}},
	}
	fn := compileSlack(config)
	out, err := fn(sampleEvent())
	if err != nil {
		t.Fatalf("slack transform failed: %v", err)
	}
	payload := out.(map[string]any)

	if payload["text"] != "custom text" || payload["username"] != "eventgate" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["channel"] != "#ops" || payload["icon_emoji"] != ":bell:" {
		t.Fatalf("unexpected payload %v", payload)
	}
	blocks := payload["blocks"].([]any)
	if len(blocks) != 1 || blocks[0].(map[string]any)["type"] != "divider" {
		t.Fatalf("configured blocks should pass through, got %v", blocks)
	}
}

func TestSlackOmitsUnsetOptionalFields(t *testing.T) {
	fn := compileSlack(map[string]any{})
	out, _ := fn(sampleEvent())
	payload := out.(map[string]any)
	for _, key := range []string{"username", "channel", "icon_emoji"} {
		if _, ok := payload[key]; ok {
			t.Fatalf("unset %s should be omitted, got %v", key, payload)
		}
	}
}
