package destinations

import (
	"context"
	"fmt"

	"github.com/eventgatehq/eventgate-backend/internal/forward"
	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	"github.com/eventgatehq/eventgate-backend/pkg/enums"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// LoadAll registers every persisted destination into the registry at startup.
// A row that fails validation is logged and skipped so one bad destination
// cannot keep the rest offline.
func LoadAll(ctx context.Context, repo Repository, reg *Registry, logg *logger.Logger) (int, error) {
	rows, err := repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load destinations: %w", err)
	}

	loaded := 0
	for i := range rows {
		row := rows[i]
		if err := RegisterModel(reg, &row); err != nil {
			logg.Error(logg.WithDestination(ctx, row.Name), "skipping unloadable destination", err)
			continue
		}
		loaded++
	}
	logg.Info(logg.WithField(ctx, "count", loaded), "destinations loaded")
	return loaded, nil
}

// RegisterModel maps a persisted row into a live registration.
func RegisterModel(reg *Registry, d *models.Destination) error {
	return reg.Register(d.Name, Config{
		URL:             d.URL,
		Method:          d.Method,
		ContentType:     contentTypeFor(d.Config),
		Headers:         configHeaders(d.Config),
		TimeoutMS:       d.TimeoutMS,
		SecretEncrypted: storedSecret(d),
		Retry:           retryStrategyFor(d.RetryStrategy),
		EventTypes:      []string(d.EventTypes),
		Transform:       TransformSpecFor(d),
		Enabled:         d.Enabled,
	})
}

// TargetFor builds the single-send target from a persisted row. Routing and
// test sends share it so ad-hoc deliveries behave exactly like registered ones.
func TargetFor(d *models.Destination) forward.Target {
	return forward.Target{
		Name:            d.Name,
		URL:             d.URL,
		Method:          d.Method,
		Headers:         configHeaders(d.Config),
		ContentType:     contentTypeFor(d.Config),
		Timeout:         clampTimeout(d.TimeoutMS),
		SecretEncrypted: storedSecret(d),
		Retry:           retryStrategyFor(d.RetryStrategy),
	}
}

// TransformSpecFor derives the per-destination transform. An explicit
// config.transform block wins; otherwise the destination type implies one.
// Both {type, config: {...}} and {type, ...inline} block shapes are accepted.
func TransformSpecFor(d *models.Destination) transform.Spec {
	spec := transform.Spec{Type: impliedTransformType(d.Type)}

	raw, ok := d.Config["transform"].(map[string]any)
	if !ok {
		return spec
	}
	if typeName, ok := raw["type"].(string); ok && typeName != "" {
		if parsed, err := enums.ParseTransformationType(typeName); err == nil {
			spec.Type = parsed
		}
	}
	if cfg, ok := raw["config"].(map[string]any); ok {
		spec.Config = cfg
	} else {
		spec.Config = raw
	}
	return spec
}

func impliedTransformType(destType enums.DestinationType) enums.TransformationType {
	switch destType {
	case enums.DestinationTypeSlack:
		return enums.TransformationTypeSlack
	case enums.DestinationTypeMixpanel:
		return enums.TransformationTypeMixpanel
	default:
		return enums.TransformationTypeIdentity
	}
}

func contentTypeFor(config map[string]any) string {
	format, _ := config["format"].(string)
	switch format {
	case "form":
		return "application/x-www-form-urlencoded"
	case "multipart":
		return "multipart/form-data"
	default:
		return "application/json"
	}
}

func configHeaders(config map[string]any) map[string]string {
	raw, ok := config["headers"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	headers := make(map[string]string, len(raw))
	for key, value := range raw {
		headers[key] = fmt.Sprint(value)
	}
	return headers
}

func retryStrategyFor(raw map[string]any) forward.RetryStrategy {
	if len(raw) == 0 {
		return forward.RetryStrategy{}
	}
	return forward.RetryStrategy{
		MaxAttempts: intFromConfig(raw["maxAttempts"]),
		BackoffMS:   intFromConfig(raw["backoffMs"]),
	}
}

func intFromConfig(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func storedSecret(d *models.Destination) string {
	if !d.HasSecret() {
		return ""
	}
	return *d.SecretKeyEncrypted
}
