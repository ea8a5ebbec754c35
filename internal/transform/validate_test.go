package transform

import (
	"testing"

	"github.com/eventgatehq/eventgate-backend/pkg/enums"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{
			name: "identity needs no config",
			spec: Spec{Type: enums.TransformationTypeIdentity},
		},
		{
			name: "valid template",
			spec: Spec{Type: enums.TransformationTypeTemplate, Config: map[string]any{
				"template": `{"name": "{{.eventName}}"}`,
			}},
		},
		{
			name: "template parse failure",
			spec: Spec{Type: enums.TransformationTypeTemplate, Config: map[string]any{
				"template": `{{.eventName`,
			}},
			wantErr: true,
		},
		{
			name:    "template config missing",
			spec:    Spec{Type: enums.TransformationTypeTemplate, Config: map[string]any{}},
			wantErr: true,
		},
		{
			name: "named templates",
			spec: Spec{Type: enums.TransformationTypeTemplate, Config: map[string]any{
				"templates": map[string]any{"subject": "{{.eventName}}"},
			}},
		},
		{
			name: "named template not a string",
			spec: Spec{Type: enums.TransformationTypeTemplate, Config: map[string]any{
				"templates": map[string]any{"subject": 12},
			}},
			wantErr: true,
		},
		{
			name: "valid script",
			spec: Spec{Type: enums.TransformationTypeScript, Config: map[string]any{
				"script": map[string]any{
					"operations": []any{map[string]any{"type": "set", "target": "ok", "args": []any{true}}},
				},
			}},
		},
		{
			name:    "script missing",
			spec:    Spec{Type: enums.TransformationTypeScript, Config: map[string]any{}},
			wantErr: true,
		},
		{
			name: "script invalid json",
			spec: Spec{Type: enums.TransformationTypeScript, Config: map[string]any{
				"script": `{"operations": `,
			}},
			wantErr: true,
		},
		{
			name: "valid jsonpath",
			spec: Spec{Type: enums.TransformationTypeJSONPath, Config: map[string]any{
				"mapping": map[string]any{"user": "$.properties.userId"},
			}},
		},
		{
			name: "jsonpath bad expression",
			spec: Spec{Type: enums.TransformationTypeJSONPath, Config: map[string]any{
				"mapping": map[string]any{"user": "$.properties["},
			}},
			wantErr: true,
		},
		{
			name:    "jsonpath mapping missing",
			spec:    Spec{Type: enums.TransformationTypeJSONPath, Config: map[string]any{}},
			wantErr: true,
		},
		{
			name: "valid mapping",
			spec: Spec{Type: enums.TransformationTypeMapping, Config: map[string]any{
				"mapping": map[string]any{"id": "properties.orderId"},
			}},
		},
		{
			name:    "mapping missing",
			spec:    Spec{Type: enums.TransformationTypeMapping, Config: map[string]any{}},
			wantErr: true,
		},
		{
			name: "slack accepts empty config",
			spec: Spec{Type: enums.TransformationTypeSlack, Config: map[string]any{}},
		},
		{
			name:    "unknown type rejected",
			spec:    Spec{Type: enums.TransformationType("lua")},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.spec)
			if tc.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
