package enums

import "fmt"

// ConditionType identifies how a route condition is evaluated.
type ConditionType string

const (
	ConditionTypeProperty ConditionType = "property"
	ConditionTypeJSONPath ConditionType = "jsonpath"
	ConditionTypeScript   ConditionType = "script"
)

var validConditionTypes = []ConditionType{
	ConditionTypeProperty,
	ConditionTypeJSONPath,
	ConditionTypeScript,
}

// IsValid checks whether the given type matches the canonical enum.
func (c ConditionType) IsValid() bool {
	for _, candidate := range validConditionTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConditionType converts raw strings into ConditionType.
func ParseConditionType(value string) (ConditionType, error) {
	for _, candidate := range validConditionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid condition type %q", value)
}
