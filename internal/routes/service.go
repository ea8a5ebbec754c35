package routes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/internal/destinations"
	"github.com/eventgatehq/eventgate-backend/internal/routing"
	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/db"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

const (
	defaultPriority = 100
	maxPriority     = 1000
)

// Refresher re-derives the routing table after a mutation that can change
// which routes are deliverable.
type Refresher interface {
	RefreshRoutes(ctx context.Context) error
}

// Service defines route CRUD plus the dry-run test endpoint.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Route, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Route, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.Route, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Toggle(ctx context.Context, id uuid.UUID) (*models.Route, error)
	Test(ctx context.Context, id uuid.UUID, params TestParams) (*TestResult, error)
}

// CreateParams carries a new route. EventTypes accepts the wildcard string,
// a single name, or a list.
type CreateParams struct {
	Name             string
	Description      *string
	EventTypes       any
	TransformationID uuid.UUID
	DestinationID    uuid.UUID
	Condition        map[string]any
	Priority         *int
	Enabled          *bool
}

// UpdateParams carries a partial update; nil fields keep the stored value.
// An empty Condition map clears the stored condition.
type UpdateParams struct {
	Description      *string
	EventTypes       any
	TransformationID *uuid.UUID
	DestinationID    *uuid.UUID
	Condition        map[string]any
	Priority         *int
	Enabled          *bool
}

// TestParams shapes the throwaway event a route is evaluated against.
type TestParams struct {
	EventName  string
	Timestamp  *time.Time
	Properties map[string]any
}

// TestResult reports whether the event would have matched and, when it
// would, the exact body the destination would have received. Nothing is
// delivered.
type TestResult struct {
	Matched bool `json:"matched"`
	Payload any  `json:"payload,omitempty"`
}

// ListResult wraps a page of routes.
type ListResult struct {
	Items []models.Route  `json:"items"`
	Meta  pagination.Meta `json:"meta"`
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Repo      Repository
	Refresher Refresher
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	refresher Refresher
	logger    *logger.Logger
}

// NewService wires route dependencies. Refresher may be nil during startup
// wiring.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "routes repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "routes logger required")
	}
	return &service{
		repo:      params.Repo,
		refresher: params.Refresher,
		logger:    params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Route, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route name is required")
	}
	if err := s.checkTransformation(ctx, params.TransformationID); err != nil {
		return nil, err
	}
	if err := s.checkDestination(ctx, params.DestinationID); err != nil {
		return nil, err
	}
	condition, err := conditionMap(params.Condition)
	if err != nil {
		return nil, err
	}

	route := &models.Route{
		Name:             name,
		Description:      params.Description,
		EventTypes:       destinations.NormalizeEventTypes(params.EventTypes),
		TransformationID: params.TransformationID,
		DestinationID:    params.DestinationID,
		Condition:        condition,
		Priority:         normalizePriority(params.Priority),
		Enabled:          params.Enabled == nil || *params.Enabled,
	}

	if err := s.repo.Create(ctx, route); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "route name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create route")
	}

	s.refreshRoutes(ctx)
	return route, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	params = pagination.Normalize(params)
	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list routes")
	}
	return &ListResult{Items: items, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	return s.find(ctx, id)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.Route, error) {
	route, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Description != nil {
		route.Description = params.Description
	}
	if params.EventTypes != nil {
		route.EventTypes = destinations.NormalizeEventTypes(params.EventTypes)
	}
	if params.TransformationID != nil {
		if err := s.checkTransformation(ctx, *params.TransformationID); err != nil {
			return nil, err
		}
		route.TransformationID = *params.TransformationID
		route.Transformation = nil
	}
	if params.DestinationID != nil {
		if err := s.checkDestination(ctx, *params.DestinationID); err != nil {
			return nil, err
		}
		route.DestinationID = *params.DestinationID
		route.Destination = nil
	}
	if params.Condition != nil {
		condition, err := conditionMap(params.Condition)
		if err != nil {
			return nil, err
		}
		route.Condition = condition
	}
	if params.Priority != nil {
		route.Priority = clampPriority(*params.Priority)
	}
	if params.Enabled != nil {
		route.Enabled = *params.Enabled
	}

	if err := s.repo.Update(ctx, route); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "route name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update route")
	}

	s.refreshRoutes(ctx)
	return route, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete route")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
	}

	s.refreshRoutes(ctx)
	return nil
}

func (s *service) Toggle(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	route, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetEnabled(ctx, id, !route.Enabled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle route")
	}

	s.refreshRoutes(ctx)
	return updated, nil
}

// Test evaluates the route's filter, condition, and transformation against a
// caller-supplied event without delivering anything. Enabled flags are
// ignored so disabled routes can still be exercised.
func (s *service) Test(ctx context.Context, id uuid.UUID, params TestParams) (*TestResult, error) {
	route, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if route.Transformation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "route transformation missing")
	}

	condition, err := routing.ParseCondition(route.Condition)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	eventName := params.EventName
	if eventName == "" {
		eventName = "test.event"
	}
	timestamp := time.Now().UTC()
	if params.Timestamp != nil {
		timestamp = params.Timestamp.UTC()
	}
	properties := params.Properties
	if properties == nil {
		properties = map[string]any{"test": true}
	}
	event := transform.Event{
		ID:         uuid.NewString(),
		EventName:  eventName,
		Timestamp:  timestamp,
		Properties: properties,
	}

	if !routing.EventTypeMatches(route.EventTypes, event.EventName) {
		return &TestResult{Matched: false}, nil
	}
	if condition != nil && !condition.Evaluate(event) {
		return &TestResult{Matched: false}, nil
	}

	spec := transform.Spec{Type: route.Transformation.Type, Config: route.Transformation.Config}
	fn := transform.Safe(transform.Compile(spec, s.logger), s.logger, route.Name)
	payload, err := fn(event)
	if err != nil {
		payload = transform.FallbackPayload(event, err.Error())
	}
	return &TestResult{Matched: true, Payload: routing.DeliveryPayload(event, payload)}, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	route, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find route")
	}
	return route, nil
}

// checkTransformation enforces that routes only bind enabled transformations
// at write time. The router re-checks at load, so a later disable simply
// drops the route from the table.
func (s *service) checkTransformation(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transformationId is required")
	}
	transformation, err := s.repo.FindTransformation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("transformation %s not found", id))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transformation")
	}
	if !transformation.Enabled {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("transformation %s is disabled", id))
	}
	return nil
}

func (s *service) checkDestination(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "destinationId is required")
	}
	destination, err := s.repo.FindDestination(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("destination %s not found", id))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find destination")
	}
	if !destination.Enabled {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("destination %s is disabled", id))
	}
	return nil
}

func (s *service) refreshRoutes(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.RefreshRoutes(ctx); err != nil {
		s.logger.Error(ctx, "refresh routes after route change", err)
	}
}

// conditionMap validates the raw condition and normalizes "no condition" to
// a NULL column. An empty map therefore clears a stored condition.
func conditionMap(raw map[string]any) (datatypes.JSONMap, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if _, err := routing.ParseCondition(raw); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return datatypes.JSONMap(raw), nil
}

func normalizePriority(priority *int) int {
	if priority == nil {
		return defaultPriority
	}
	return clampPriority(*priority)
}

func clampPriority(priority int) int {
	if priority < 0 {
		return 0
	}
	if priority > maxPriority {
		return maxPriority
	}
	return priority
}
