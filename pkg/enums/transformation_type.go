package enums

import "fmt"

// TransformationType selects which transform kind a transformation compiles to.
type TransformationType string

const (
	TransformationTypeIdentity TransformationType = "identity"
	TransformationTypeTemplate TransformationType = "template"
	TransformationTypeScript   TransformationType = "script"
	TransformationTypeJSONPath TransformationType = "jsonpath"
	TransformationTypeMapping  TransformationType = "mapping"
	TransformationTypeSlack    TransformationType = "slack"
	TransformationTypeMixpanel TransformationType = "mixpanel"
)

var validTransformationTypes = []TransformationType{
	TransformationTypeIdentity,
	TransformationTypeTemplate,
	TransformationTypeScript,
	TransformationTypeJSONPath,
	TransformationTypeMapping,
	TransformationTypeSlack,
	TransformationTypeMixpanel,
}

// IsValid checks whether the given type matches the canonical enum.
func (tt TransformationType) IsValid() bool {
	for _, candidate := range validTransformationTypes {
		if candidate == tt {
			return true
		}
	}
	return false
}

// ParseTransformationType converts raw strings into TransformationType.
func ParseTransformationType(value string) (TransformationType, error) {
	for _, candidate := range validTransformationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transformation type %q", value)
}
