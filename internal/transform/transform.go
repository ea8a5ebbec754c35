package transform

import (
	"context"
	"fmt"

	"github.com/eventgatehq/eventgate-backend/pkg/enums"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// Spec pairs a transformation type with its free-form config.
type Spec struct {
	Type   enums.TransformationType
	Config map[string]any
}

// Func is a compiled transform. Implementations are pure: they never mutate
// the event and perform no I/O.
type Func func(Event) (any, error)

// Compile maps a spec onto its executable transform. Unknown types fall back
// to identity with a warning. Config problems surface as an error from the
// returned Func, so the safe wrapper can contain them at call time.
func Compile(spec Spec, logg *logger.Logger) Func {
	switch spec.Type {
	case enums.TransformationTypeIdentity:
		return identity
	case enums.TransformationTypeTemplate:
		return compileTemplate(spec.Config)
	case enums.TransformationTypeScript:
		return compileScript(spec.Config, logg)
	case enums.TransformationTypeJSONPath:
		return compileJSONPath(spec.Config)
	case enums.TransformationTypeMapping:
		return compileMapping(spec.Config)
	case enums.TransformationTypeSlack:
		return compileSlack(spec.Config)
	case enums.TransformationTypeMixpanel:
		return compileMixpanel(spec.Config)
	default:
		if logg != nil {
			ctx := logg.WithFields(context.Background(), map[string]any{"type": string(spec.Type)})
			logg.Warn(ctx, "unknown transformation type, falling back to identity")
		}
		return identity
	}
}

func identity(e Event) (any, error) {
	return e, nil
}

func errorFunc(err error) Func {
	return func(Event) (any, error) {
		return nil, err
	}
}

// Safe wraps fn so failures never escape the transform boundary: panics and
// errors are logged and replaced with the minimal fallback payload. The scope
// label identifies the caller in logs.
func Safe(fn Func, logg *logger.Logger, scope string) Func {
	return func(e Event) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				cause := fmt.Errorf("panic: %v", r)
				logFallback(logg, e, scope, cause)
				out = FallbackPayload(e, cause.Error())
				err = nil
			}
		}()
		value, ferr := fn(e)
		if ferr != nil {
			logFallback(logg, e, scope, ferr)
			return FallbackPayload(e, ferr.Error()), nil
		}
		return value, nil
	}
}

// FallbackPayload is what a destination receives when its transform fails.
func FallbackPayload(e Event, message string) map[string]any {
	return map[string]any{
		"eventName": e.EventName,
		"eventId":   e.ID,
		"timestamp": formatTimestamp(e.Timestamp),
		"error":     message,
	}
}

func logFallback(logg *logger.Logger, e Event, scope string, cause error) {
	if logg == nil {
		return
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"event_id":   e.ID,
		"event_name": e.EventName,
		"context":    scope,
	})
	logg.Error(ctx, "transform failed, using fallback payload", cause)
}
