package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	eventsvc "github.com/eventgatehq/eventgate-backend/internal/events"
	"github.com/eventgatehq/eventgate-backend/internal/routing"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

func newControllerTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

type fakeEventService struct {
	event      *models.Event
	list       *eventsvc.ListResult
	forwarded  []routing.RouteResult
	err        error
	lastIngest eventsvc.IngestParams
	lastList   eventsvc.ListParams
	lastUser   string
	lastKey    string
	lastValue  string
	lastPage   pagination.Params
	lastID     uuid.UUID
}

func (f *fakeEventService) Ingest(_ context.Context, params eventsvc.IngestParams) (*models.Event, error) {
	f.lastIngest = params
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

func (f *fakeEventService) List(_ context.Context, params eventsvc.ListParams) (*eventsvc.ListResult, error) {
	f.lastList = params
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeEventService) Get(_ context.Context, id uuid.UUID) (*models.Event, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

func (f *fakeEventService) ListByUser(_ context.Context, userID string, params pagination.Params) (*eventsvc.ListResult, error) {
	f.lastUser = userID
	f.lastPage = params
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeEventService) Search(_ context.Context, key, value string, params pagination.Params) (*eventsvc.ListResult, error) {
	f.lastKey = key
	f.lastValue = value
	f.lastPage = params
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeEventService) Forward(_ context.Context, id uuid.UUID) ([]routing.RouteResult, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.forwarded, nil
}

func TestEventsIngestCreated(t *testing.T) {
	eventID := uuid.New()
	svc := &fakeEventService{event: &models.Event{ID: eventID, EventName: "user.signup"}}
	handler := EventsIngest(svc, newControllerTestLogger())

	body := `{"eventName":"user.signup","properties":{"userId":"u_1","plan":"pro"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastIngest.EventName != "user.signup" {
		t.Fatalf("expected event name passed through, got %q", svc.lastIngest.EventName)
	}
	if svc.lastIngest.Properties["plan"] != "pro" {
		t.Fatalf("expected properties passed through, got %v", svc.lastIngest.Properties)
	}

	var envelope struct {
		Success bool         `json:"success"`
		Data    models.Event `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Success || envelope.Data.ID != eventID {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestEventsIngestRequiresEventName(t *testing.T) {
	svc := &fakeEventService{}
	handler := EventsIngest(svc, newControllerTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"properties":{}}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "eventName") {
		t.Fatalf("expected field detail in response, got %s", rec.Body.String())
	}
}

func TestEventsIngestRejectsUnknownFields(t *testing.T) {
	svc := &fakeEventService{}
	handler := EventsIngest(svc, newControllerTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"eventName":"x","source":"spoofed"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestEventsListParsesFilters(t *testing.T) {
	svc := &fakeEventService{list: &eventsvc.ListResult{Items: []models.Event{}, Meta: pagination.Meta{Page: 2, Limit: 10}}}
	handler := EventsList(svc, newControllerTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events?page=2&limit=10&eventName=user.signup&userId=u_1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastList.Page != 2 || svc.lastList.Limit != 10 {
		t.Fatalf("expected pagination parsed, got %+v", svc.lastList.Params)
	}
	if svc.lastList.EventName != "user.signup" || svc.lastList.UserID != "u_1" {
		t.Fatalf("expected filters parsed, got %+v", svc.lastList)
	}
}

func TestEventsGetInvalidID(t *testing.T) {
	svc := &fakeEventService{}
	handler := EventsGet(svc, newControllerTestLogger())

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/events/not-a-uuid", nil), "id", "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid event id") {
		t.Fatalf("expected invalid id message, got %s", rec.Body.String())
	}
}

func TestEventsGetNotFound(t *testing.T) {
	svc := &fakeEventService{err: pkgerrors.New(pkgerrors.CodeNotFound, "event not found")}
	handler := EventsGet(svc, newControllerTestLogger())

	id := uuid.NewString()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/events/"+id, nil), "id", id)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEventsByUserRequiresUserID(t *testing.T) {
	svc := &fakeEventService{list: &eventsvc.ListResult{}}
	handler := EventsByUser(svc, newControllerTestLogger())

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/events/user/x", nil), "userId", "   ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank user id, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestEventsByUserPassesThrough(t *testing.T) {
	svc := &fakeEventService{list: &eventsvc.ListResult{Items: []models.Event{{EventName: "order.placed"}}}}
	handler := EventsByUser(svc, newControllerTestLogger())

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/events/user/u_42?limit=5", nil), "userId", "u_42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastUser != "u_42" {
		t.Fatalf("expected user id u_42, got %q", svc.lastUser)
	}
	if svc.lastPage.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", svc.lastPage.Limit)
	}
}

func TestEventsSearchRequiresKeyAndValue(t *testing.T) {
	svc := &fakeEventService{list: &eventsvc.ListResult{}}
	handler := EventsSearch(svc, newControllerTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events/search?key=plan", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without value, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/events/search?key=plan&value=pro", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastKey != "plan" || svc.lastValue != "pro" {
		t.Fatalf("expected key/value parsed, got %q/%q", svc.lastKey, svc.lastValue)
	}
}

func TestEventsForwardReturnsRouteResults(t *testing.T) {
	eventID := uuid.New()
	svc := &fakeEventService{forwarded: []routing.RouteResult{{RouteName: "signup-to-slack", Destination: "slack-alerts"}}}
	handler := EventsForward(svc, newControllerTestLogger())

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/events/"+eventID.String()+"/forward", nil), "id", eventID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastID != eventID {
		t.Fatalf("expected id %s, got %s", eventID, svc.lastID)
	}

	var envelope struct {
		Data []routing.RouteResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].RouteName != "signup-to-slack" {
		t.Fatalf("unexpected results %+v", envelope.Data)
	}
}

func TestEventsNilService(t *testing.T) {
	handler := EventsList(nil, newControllerTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
