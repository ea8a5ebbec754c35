package transform

import (
	"encoding/json"
	"fmt"
)

// compileSlack shapes an incoming-webhook message. Without configured blocks
// it falls back to a two-section layout: event header plus pretty-printed
// properties.
func compileSlack(config map[string]any) Func {
	return func(e Event) (any, error) {
		out := map[string]any{}

		if text, ok := config["text"].(string); ok && text != "" {
			out["text"] = text
		} else {
			out["text"] = "Event: " + e.EventName
		}
		if username, ok := config["username"].(string); ok && username != "" {
			out["username"] = username
		}
		if channel, ok := config["channel"].(string); ok && channel != "" {
			out["channel"] = channel
		}
		if emoji := slackEmoji(config); emoji != "" {
			out["icon_emoji"] = emoji
		}

		if blocks, ok := config["blocks"].([]any); ok && len(blocks) > 0 {
			out["blocks"] = deepCopyValue(blocks)
		} else {
			out["blocks"] = defaultSlackBlocks(e)
		}
		return out, nil
	}
}

func slackEmoji(config map[string]any) string {
	if emoji, ok := config["icon_emoji"].(string); ok {
		return emoji
	}
	emoji, _ := config["iconEmoji"].(string)
	return emoji
}

func defaultSlackBlocks(e Event) []any {
	pretty, err := json.MarshalIndent(deepCopyMap(e.Properties), "", "  ")
	if err != nil {
		pretty = []byte("{}")
	}
	return []any{
		map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s*\n%s", e.EventName, formatTimestamp(e.Timestamp)),
			},
		},
		map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": "```" + string(pretty) + "```",
			},
		},
	}
}
