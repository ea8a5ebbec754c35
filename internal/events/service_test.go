package events

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/internal/forward"
	"github.com/eventgatehq/eventgate-backend/internal/routing"
	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/hub"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type stubEventsRepo struct {
	byID      map[uuid.UUID]*models.Event
	createErr error
}

func newStubEventsRepo() *stubEventsRepo {
	return &stubEventsRepo{byID: make(map[uuid.UUID]*models.Event)}
}

func (s *stubEventsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubEventsRepo) Create(ctx context.Context, event *models.Event) error {
	if s.createErr != nil {
		return s.createErr
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	copied := *event
	s.byID[event.ID] = &copied
	return nil
}

func (s *stubEventsRepo) List(ctx context.Context, filter ListFilter) ([]models.Event, int64, error) {
	out := make([]models.Event, 0, len(s.byID))
	for _, e := range s.byID {
		if filter.EventName != "" && e.EventName != filter.EventName {
			continue
		}
		out = append(out, *e)
	}
	return out, int64(len(out)), nil
}

func (s *stubEventsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *e
	return &copied, nil
}

func (s *stubEventsRepo) ListByUser(ctx context.Context, userID string, params pagination.Params) ([]models.Event, int64, error) {
	out := make([]models.Event, 0)
	for _, e := range s.byID {
		if e.Properties["userId"] == userID {
			out = append(out, *e)
		}
	}
	return out, int64(len(out)), nil
}

func (s *stubEventsRepo) Search(ctx context.Context, key, value string, params pagination.Params) ([]models.Event, int64, error) {
	return nil, 0, nil
}

type stubRouter struct {
	results []routing.RouteResult
	events  chan transform.Event
}

func newStubRouter(results []routing.RouteResult) *stubRouter {
	return &stubRouter{results: results, events: make(chan transform.Event, 8)}
}

func (s *stubRouter) RouteEvent(ctx context.Context, event transform.Event) []routing.RouteResult {
	s.events <- event
	return s.results
}

type stubForwarder struct {
	results []forward.Result
	events  chan transform.Event
}

func newStubForwarder(results []forward.Result) *stubForwarder {
	return &stubForwarder{results: results, events: make(chan transform.Event, 8)}
}

func (s *stubForwarder) ProcessEvent(ctx context.Context, event transform.Event) []forward.Result {
	s.events <- event
	return s.results
}

func newEventsService(t *testing.T, repo Repository, router Router, forwarder Forwarder, broadcaster Broadcaster) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Router:    router,
		Forwarder: forwarder,
		Hub:       broadcaster,
		Logger:    newTestLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func waitForMessage(t *testing.T, messages <-chan hub.Message, messageType string) hub.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-messages:
			if msg.Type == messageType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", messageType)
		}
	}
}

func TestIngestRequiresEventName(t *testing.T) {
	svc := newEventsService(t, newStubEventsRepo(), newStubRouter(nil), newStubForwarder(nil), nil)

	_, err := svc.Ingest(context.Background(), IngestParams{})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestStoresAndDispatches(t *testing.T) {
	repo := newStubEventsRepo()
	router := newStubRouter([]routing.RouteResult{{RouteName: "r1", Destination: "d1", Delivery: forward.Result{Success: true}}})
	forwarder := newStubForwarder([]forward.Result{{Destination: "d2", Success: true}})
	broadcaster := hub.New(16)
	messages, cancel := broadcaster.Subscribe()
	defer cancel()

	svc := newEventsService(t, repo, router, forwarder, broadcaster)

	stored, err := svc.Ingest(context.Background(), IngestParams{
		EventName:  "order.paid",
		Properties: map[string]any{"userId": "u1"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stored.ID == uuid.Nil {
		t.Fatal("stored event should have an id")
	}
	if stored.Timestamp.IsZero() {
		t.Fatal("timestamp should default to now")
	}

	waitForMessage(t, messages, MessageEventIngested)

	routed := <-router.events
	if routed.EventName != "order.paid" || routed.ID != stored.ID.String() {
		t.Fatalf("router saw wrong event: %+v", routed)
	}
	<-forwarder.events

	msg := waitForMessage(t, messages, MessageEventRouted)
	var outcome DispatchOutcome
	if err := json.Unmarshal(msg.Data, &outcome); err != nil {
		t.Fatalf("outcome payload: %v", err)
	}
	if outcome.EventID != stored.ID || len(outcome.Routes) != 1 || len(outcome.Forwarded) != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestIngestHonorsProvidedTimestamp(t *testing.T) {
	repo := newStubEventsRepo()
	svc := newEventsService(t, repo, newStubRouter(nil), newStubForwarder(nil), nil)

	at := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	stored, err := svc.Ingest(context.Background(), IngestParams{EventName: "order.paid", Timestamp: &at})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !stored.Timestamp.Equal(at) {
		t.Fatalf("timestamp not honored: %v", stored.Timestamp)
	}
}

func TestForwardRunsRoutingSynchronously(t *testing.T) {
	repo := newStubEventsRepo()
	router := newStubRouter([]routing.RouteResult{{RouteName: "r1", Delivery: forward.Result{Success: true}}})
	forwarder := newStubForwarder(nil)
	svc := newEventsService(t, repo, router, forwarder, nil)

	event := &models.Event{
		ID:         uuid.New(),
		EventName:  "order.paid",
		Timestamp:  time.Now().UTC(),
		Properties: map[string]any{"userId": "u1"},
	}
	repo.byID[event.ID] = event

	results, err := svc.Forward(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(results) != 1 || results[0].RouteName != "r1" {
		t.Fatalf("unexpected results: %+v", results)
	}

	select {
	case routed := <-router.events:
		if routed.ID != event.ID.String() {
			t.Fatalf("router saw wrong event: %+v", routed)
		}
	default:
		t.Fatal("forward should have called the router synchronously")
	}

	select {
	case <-forwarder.events:
		t.Fatal("forward must not fan out to destination subscriptions")
	default:
	}
}

func TestForwardUnknownEvent(t *testing.T) {
	svc := newEventsService(t, newStubEventsRepo(), newStubRouter(nil), newStubForwarder(nil), nil)

	_, err := svc.Forward(context.Background(), uuid.New())
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetValidatesID(t *testing.T) {
	svc := newEventsService(t, newStubEventsRepo(), newStubRouter(nil), newStubForwarder(nil), nil)

	_, err := svc.Get(context.Background(), uuid.Nil)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
