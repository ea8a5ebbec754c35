package transform

import (
	"errors"
	"fmt"
	"text/template"

	"github.com/ohler55/ojg/jp"

	"github.com/eventgatehq/eventgate-backend/pkg/enums"
)

// Validate checks a spec's config without executing it. It reports the same
// config problems Compile defers to first call, so callers can reject bad
// transformations before they are stored.
func Validate(spec Spec) error {
	switch spec.Type {
	case enums.TransformationTypeIdentity,
		enums.TransformationTypeSlack,
		enums.TransformationTypeMixpanel:
		return nil
	case enums.TransformationTypeTemplate:
		return validateTemplate(spec.Config)
	case enums.TransformationTypeScript:
		_, err := decodeScript(spec.Config["script"])
		return err
	case enums.TransformationTypeJSONPath:
		return validateJSONPath(spec.Config)
	case enums.TransformationTypeMapping:
		if _, ok := spec.Config["mapping"].(map[string]any); !ok {
			return errors.New("mapping config requires a mapping")
		}
		return nil
	default:
		return fmt.Errorf("invalid transformation type %q", spec.Type)
	}
}

func validateTemplate(config map[string]any) error {
	if raw, ok := config["template"].(string); ok {
		_, err := template.New("transform").Funcs(templateFuncs()).Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing template: %w", err)
		}
		return nil
	}

	if rawSet, ok := config["templates"].(map[string]any); ok && len(rawSet) > 0 {
		for name, value := range rawSet {
			text, ok := value.(string)
			if !ok {
				return fmt.Errorf("template %q is not a string", name)
			}
			if _, err := template.New(name).Funcs(templateFuncs()).Parse(text); err != nil {
				return fmt.Errorf("parsing template %q: %w", name, err)
			}
		}
		return nil
	}

	return errors.New("template config requires template or templates")
}

func validateJSONPath(config map[string]any) error {
	mapping, ok := config["mapping"].(map[string]any)
	if !ok || len(mapping) == 0 {
		return errors.New("jsonpath config requires a mapping")
	}
	for key, value := range mapping {
		exprText, ok := value.(string)
		if !ok {
			return fmt.Errorf("jsonpath mapping %q is not a string", key)
		}
		if _, err := jp.ParseString(exprText); err != nil {
			return fmt.Errorf("parsing jsonpath %q: %w", key, err)
		}
	}
	return nil
}
