package transform

import (
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/eventgatehq/eventgate-backend/pkg/enums"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func sampleEvent() Event {
	return Event{
		ID:        "e1",
		EventName: "order.paid",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Properties: map[string]any{
			"userId": "u1",
			"amount": float64(500),
			"items": []any{
				map[string]any{"name": "a"},
				map[string]any{"name": "b"},
			},
		},
	}
}

func TestCompileIdentity(t *testing.T) {
	fn := Compile(Spec{Type: enums.TransformationTypeIdentity}, newTestLogger())
	event := sampleEvent()
	out, err := fn(event)
	if err != nil {
		t.Fatalf("identity returned error: %v", err)
	}
	got, ok := out.(Event)
	if !ok {
		t.Fatalf("identity should return the event, got %T", out)
	}
	if got.ID != "e1" || got.EventName != "order.paid" {
		t.Fatalf("identity altered the event: %+v", got)
	}
}

func TestCompileUnknownTypeFallsBackToIdentity(t *testing.T) {
	fn := Compile(Spec{Type: enums.TransformationType("bogus")}, newTestLogger())
	out, err := fn(sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.(Event); !ok {
		t.Fatalf("expected identity fallback, got %T", out)
	}
}

func TestSafeConvertsErrorToFallback(t *testing.T) {
	fn := Safe(errorFunc(errors.New("boom")), newTestLogger(), "destination:d1")
	event := sampleEvent()
	out, err := fn(event)
	if err != nil {
		t.Fatalf("safe transform must not return errors, got %v", err)
	}
	payload, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected fallback map, got %T", out)
	}
	if payload["eventName"] != "order.paid" || payload["eventId"] != "e1" {
		t.Fatalf("fallback missing event identity: %v", payload)
	}
	if payload["timestamp"] != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected fallback timestamp %v", payload["timestamp"])
	}
	if payload["error"] != "boom" {
		t.Fatalf("unexpected fallback error %v", payload["error"])
	}
}

func TestSafeRecoversPanics(t *testing.T) {
	panicking := Func(func(Event) (any, error) {
		panic("kaboom")
	})
	fn := Safe(panicking, newTestLogger(), "route:r1")
	out, err := fn(sampleEvent())
	if err != nil {
		t.Fatalf("safe transform must swallow panics, got %v", err)
	}
	payload, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected fallback map, got %T", out)
	}
	if payload["error"] != "panic: kaboom" {
		t.Fatalf("unexpected fallback error %v", payload["error"])
	}
}

func TestTransformPurity(t *testing.T) {
	spec := Spec{
		Type: enums.TransformationTypeMapping,
		Config: map[string]any{
			"mapping": map[string]any{"who": "properties.userId"},
			"fixed":   map[string]any{"v": float64(1)},
		},
	}
	fn := Compile(spec, newTestLogger())
	event := sampleEvent()

	first, err := fn(event)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := fn(event)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("transform is not deterministic: %v vs %v", first, second)
	}
	if event.Properties["userId"] != "u1" || len(event.Properties) != 3 {
		t.Fatalf("transform mutated the source event: %v", event.Properties)
	}
}
