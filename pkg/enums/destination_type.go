package enums

import "fmt"

// DestinationType classifies what kind of sink a destination points at.
type DestinationType string

const (
	DestinationTypeSlack    DestinationType = "slack"
	DestinationTypeMixpanel DestinationType = "mixpanel"
	DestinationTypeWebhook  DestinationType = "webhook"
	DestinationTypeCustom   DestinationType = "custom"
)

var validDestinationTypes = []DestinationType{
	DestinationTypeSlack,
	DestinationTypeMixpanel,
	DestinationTypeWebhook,
	DestinationTypeCustom,
}

// IsValid checks whether the given type matches the canonical enum.
func (d DestinationType) IsValid() bool {
	for _, candidate := range validDestinationTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDestinationType converts raw strings into DestinationType.
func ParseDestinationType(value string) (DestinationType, error) {
	for _, candidate := range validDestinationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid destination type %q", value)
}
