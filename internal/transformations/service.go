package transformations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/db"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	"github.com/eventgatehq/eventgate-backend/pkg/enums"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// Refresher re-derives the routing table after a mutation that can change
// which routes are deliverable.
type Refresher interface {
	RefreshRoutes(ctx context.Context) error
}

// Service defines transformation CRUD plus the dry-run test endpoint.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Transformation, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Transformation, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.Transformation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Toggle(ctx context.Context, id uuid.UUID) (*models.Transformation, error)
	Test(ctx context.Context, id uuid.UUID, params TestParams) (any, error)
}

// CreateParams carries a new transformation.
type CreateParams struct {
	Name        string
	Description *string
	Type        string
	Config      map[string]any
	Enabled     *bool
}

// UpdateParams carries a partial update; nil fields keep the stored value.
type UpdateParams struct {
	Description *string
	Type        *string
	Config      map[string]any
	Enabled     *bool
}

// TestParams shapes the throwaway event a transformation is applied to.
type TestParams struct {
	EventName  string
	Timestamp  *time.Time
	Properties map[string]any
}

// ListResult wraps a page of transformations.
type ListResult struct {
	Items []models.Transformation `json:"items"`
	Meta  pagination.Meta         `json:"meta"`
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

// NewService wires transformation dependencies. Refresher may be nil during
// startup wiring.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transformations repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transformations logger required")
	}
	return &service{
		repo:      params.Repo,
		refresher: params.Refresher,
		logger:    params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Transformation, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transformation name is required")
	}

	kind, err := parseKind(params.Type)
	if err != nil {
		return nil, err
	}
	config := configMap(params.Config)
	if err := validateSpec(kind, config); err != nil {
		return nil, err
	}

	transformation := &models.Transformation{
		Name:        name,
		Description: params.Description,
		Type:        kind,
		Config:      config,
		Enabled:     params.Enabled == nil || *params.Enabled,
	}

	if err := s.repo.Create(ctx, transformation); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "transformation name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transformation")
	}

	s.refreshRoutes(ctx)
	return transformation, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	params = pagination.Normalize(params)
	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transformations")
	}
	return &ListResult{Items: items, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	return s.find(ctx, id)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.Transformation, error) {
	transformation, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Description != nil {
		transformation.Description = params.Description
	}
	if params.Type != nil {
		kind, err := parseKind(*params.Type)
		if err != nil {
			return nil, err
		}
		transformation.Type = kind
	}
	if params.Config != nil {
		transformation.Config = configMap(params.Config)
	}
	if params.Enabled != nil {
		transformation.Enabled = *params.Enabled
	}

	// Type and config are validated together so a type switch cannot leave a
	// stored config the new compiler rejects.
	if err := validateSpec(transformation.Type, transformation.Config); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, transformation); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "transformation name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transformation")
	}

	s.refreshRoutes(ctx)
	return transformation, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}

	references, err := s.repo.CountRoutes(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count transformation references")
	}
	if references > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("transformation is referenced by %d route(s)", references))
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete transformation")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transformation not found")
	}

	s.refreshRoutes(ctx)
	return nil
}

func (s *service) Toggle(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	transformation, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetEnabled(ctx, id, !transformation.Enabled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle transformation")
	}

	s.refreshRoutes(ctx)
	return updated, nil
}

// Test runs the stored transformation against a caller-supplied event
// without touching any destination.
func (s *service) Test(ctx context.Context, id uuid.UUID, params TestParams) (any, error) {
	transformation, err := s.find(ctx, id)
	if err != nil {
		return nil, err
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

	spec := transform.Spec{Type: transformation.Type, Config: transformation.Config}
	fn := transform.Safe(transform.Compile(spec, s.logger), s.logger, transformation.Name)
	output, err := fn(event)
	if err != nil {
		return transform.FallbackPayload(event, err.Error()), nil
	}
	if out, ok := output.(transform.Event); ok {
		return out.Map(), nil
	}
	return output, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transformation id required")
	}
	transformation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transformation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transformation")
	}
	return transformation, nil
}

func (s *service) refreshRoutes(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.RefreshRoutes(ctx); err != nil {
		s.logger.Error(ctx, "refresh routes after transformation change", err)
	}
}

func parseKind(raw string) (enums.TransformationType, error) {
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "transformation type is required")
	}
	kind, err := enums.ParseTransformationType(raw)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return kind, nil
}

func validateSpec(kind enums.TransformationType, config datatypes.JSONMap) error {
	if err := transform.Validate(transform.Spec{Type: kind, Config: config}); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return nil
}

func configMap(config map[string]any) datatypes.JSONMap {
	if config == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(config)
}
