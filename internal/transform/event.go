package transform

import "time"

// Event is the transform-facing view of an application event. Transforms
// treat it as read-only; anything derived from it is copied first.
type Event struct {
	ID         string         `json:"id"`
	EventName  string         `json:"eventName"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties"`
}

// Map returns a path-addressable copy of the event. Mutating the returned map
// never touches the source event.
func (e Event) Map() map[string]any {
	return map[string]any{
		"id":         e.ID,
		"eventName":  e.EventName,
		"timestamp":  formatTimestamp(e.Timestamp),
		"properties": deepCopyMap(e.Properties),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
