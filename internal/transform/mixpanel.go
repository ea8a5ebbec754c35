package transform

// compileMixpanel shapes a track call: prefixed event name plus a filtered
// property bag with distinct_id and unix-seconds time stamped in.
func compileMixpanel(config map[string]any) Func {
	prefix, _ := config["eventNamePrefix"].(string)

	return func(e Event) (any, error) {
		props := deepCopyMap(e.Properties)

		switch include := config["includeProperties"].(type) {
		case bool:
			if !include {
				props = map[string]any{}
			}
		case []any:
			picked := map[string]any{}
			for _, key := range include {
				name, ok := key.(string)
				if !ok {
					continue
				}
				if value, exists := props[name]; exists {
					picked[name] = value
				}
			}
			props = picked
		}

		if exclude, ok := config["excludeProperties"].([]any); ok {
			for _, key := range exclude {
				if name, ok := key.(string); ok {
					delete(props, name)
				}
			}
		}

		if _, exists := props["distinct_id"]; !exists {
			if userID, ok := e.Properties["userId"]; ok {
				props["distinct_id"] = userID
			}
		}
		props["time"] = e.Timestamp.Unix()

		return map[string]any{
			"event":      prefix + e.EventName,
			"properties": props,
		}, nil
	}
}
