package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/internal/forward"
	"github.com/eventgatehq/eventgate-backend/internal/routing"
	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/metrics"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

const (
	// MessageEventIngested announces a stored event on the hub.
	MessageEventIngested = "event.ingested"
	// MessageEventRouted announces the dispatch outcome for an event.
	MessageEventRouted = "event.routed"
)

// Router runs an event down the route list.
type Router interface {
	RouteEvent(ctx context.Context, event transform.Event) []routing.RouteResult
}

// Forwarder fans an event out to subscribed destinations.
type Forwarder interface {
	ProcessEvent(ctx context.Context, event transform.Event) []forward.Result
}

// Broadcaster pushes live updates to in-process subscribers.
type Broadcaster interface {
	Publish(messageType string, data any)
}

// Service defines event ingestion and retrieval.
type Service interface {
	Ingest(ctx context.Context, params IngestParams) (*models.Event, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListByUser(ctx context.Context, userID string, params pagination.Params) (*ListResult, error)
	Search(ctx context.Context, key, value string, params pagination.Params) (*ListResult, error)
	Forward(ctx context.Context, id uuid.UUID) ([]routing.RouteResult, error)
}

// IngestParams carries one inbound event. A zero Timestamp means now.
type IngestParams struct {
	EventName  string
	Timestamp  *time.Time
	Properties map[string]any
	Source     string
}

// ListParams narrows event listings.
type ListParams struct {
	pagination.Params
	EventName string
	UserID    string
}

// ListResult wraps a page of events.
type ListResult struct {
	Items []models.Event  `json:"items"`
	Meta  pagination.Meta `json:"meta"`
}

// DispatchOutcome is the hub payload published after an ingested event has
// been run through routing and forwarding.
type DispatchOutcome struct {
	EventID   uuid.UUID             `json:"eventId"`
	EventName string                `json:"eventName"`
	Routes    []routing.RouteResult `json:"routes"`
	Forwarded []forward.Result      `json:"forwarded"`
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Repo      Repository
	Router    Router
	Forwarder Forwarder
	Hub       Broadcaster
	Metrics   *metrics.DeliveryMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	router    Router
	forwarder Forwarder
	hub       Broadcaster
	metrics   *metrics.DeliveryMetrics
	logger    *logger.Logger
}

// NewService wires event dependencies. Metrics and hub may be nil; routing,
// forwarding, storage, and logging are required.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events repository required")
	}
	if params.Router == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events router required")
	}
	if params.Forwarder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events forwarder required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events logger required")
	}
	return &service{
		repo:      params.Repo,
		router:    params.Router,
		forwarder: params.Forwarder,
		hub:       params.Hub,
		metrics:   params.Metrics,
		logger:    params.Logger,
	}, nil
}

// Ingest persists the event, then dispatches it to routes and subscribed
// destinations off the request path. The stored row returns immediately;
// delivery outcomes surface on the hub as they complete.
func (s *service) Ingest(ctx context.Context, params IngestParams) (*models.Event, error) {
	if params.EventName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "eventName is required")
	}

	timestamp := time.Now().UTC()
	if params.Timestamp != nil && !params.Timestamp.IsZero() {
		timestamp = params.Timestamp.UTC()
	}
	properties := params.Properties
	if properties == nil {
		properties = map[string]any{}
	}

	event := &models.Event{
		EventName:  params.EventName,
		Timestamp:  timestamp,
		Properties: datatypes.JSONMap(properties),
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store event")
	}

	ctx = s.logger.WithEventID(ctx, event.ID.String())
	s.publish(MessageEventIngested, event)
	s.metrics.IncIngested(source(params.Source))
	s.logger.Info(s.logger.WithField(ctx, "event_name", event.EventName), "event ingested")

	go s.dispatch(context.WithoutCancel(ctx), *event)

	return event, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	filter := ListFilter{
		Params:    pagination.Normalize(params.Params),
		EventName: params.EventName,
		UserID:    params.UserID,
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list events")
	}
	return &ListResult{Items: rows, Meta: pagination.NewMeta(filter.Params, total)}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return s.find(ctx, id)
}

func (s *service) ListByUser(ctx context.Context, userID string, params pagination.Params) (*ListResult, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "userId is required")
	}
	params = pagination.Normalize(params)
	rows, total, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list events by user")
	}
	return &ListResult{Items: rows, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *service) Search(ctx context.Context, key, value string, params pagination.Params) (*ListResult, error) {
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search key is required")
	}
	params = pagination.Normalize(params)
	rows, total, err := s.repo.Search(ctx, key, value, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search events")
	}
	return &ListResult{Items: rows, Meta: pagination.NewMeta(params, total)}, nil
}

// Forward re-runs routing for a stored event and waits for the results.
func (s *service) Forward(ctx context.Context, id uuid.UUID) ([]routing.RouteResult, error) {
	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithEventID(ctx, event.ID.String())
	results := s.router.RouteEvent(ctx, toTransformEvent(*event))
	s.logger.Info(s.logger.WithField(ctx, "routes", len(results)), "event re-forwarded")
	return results, nil
}

// dispatch runs routing and destination fan-out for one stored event and
// publishes the merged outcome.
func (s *service) dispatch(ctx context.Context, event models.Event) {
	transformEvent := toTransformEvent(event)

	outcome := DispatchOutcome{
		EventID:   event.ID,
		EventName: event.EventName,
		Routes:    s.router.RouteEvent(ctx, transformEvent),
		Forwarded: s.forwarder.ProcessEvent(ctx, transformEvent),
	}

	s.publish(MessageEventRouted, outcome)
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"routes":    len(outcome.Routes),
		"forwarded": len(outcome.Forwarded),
	}), "event dispatched")
}

func (s *service) publish(messageType string, data any) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(messageType, data)
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find event")
	}
	return event, nil
}

func toTransformEvent(event models.Event) transform.Event {
	return transform.Event{
		ID:         event.ID.String(),
		EventName:  event.EventName,
		Timestamp:  event.Timestamp,
		Properties: event.Properties,
	}
}

func source(s string) string {
	if s == "" {
		return "api"
	}
	return s
}
