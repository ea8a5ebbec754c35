package destinations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/internal/forward"
	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/crypto"
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

// Sender delivers one payload to one target. Satisfied by forward.Forwarder.
type Sender interface {
	SendPayload(ctx context.Context, target forward.Target, payload any) forward.Result
}

// Service defines destination CRUD plus the operational endpoints.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Destination, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Destination, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.Destination, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Toggle(ctx context.Context, id uuid.UUID) (*models.Destination, error)
	Test(ctx context.Context, id uuid.UUID, params TestParams) (*forward.Result, error)
	Stats(ctx context.Context) (*Stats, error)
}

// CreateParams carries a new destination. EventTypes accepts the wildcard
// string, a single name, or a list.
type CreateParams struct {
	Name          string
	Type          string
	URL           string
	Method        string
	EventTypes    any
	Config        map[string]any
	SecretKey     string
	TimeoutMS     int
	RetryStrategy map[string]any
	Enabled       *bool
}

// UpdateParams carries a partial update; nil fields keep the stored value.
type UpdateParams struct {
	Type          *string
	URL           *string
	Method        *string
	EventTypes    any
	Config        map[string]any
	SecretKey     *string
	TimeoutMS     *int
	RetryStrategy map[string]any
	Enabled       *bool
}

// TestParams shapes the throwaway event used by test sends.
type TestParams struct {
	EventName  string
	Properties map[string]any
}

// ListResult wraps a page of destinations.
type ListResult struct {
	Items []models.Destination `json:"items"`
	Meta  pagination.Meta      `json:"meta"`
}

// Stats combines table-wide totals with per-destination delivery counters.
type Stats struct {
	Totals       Totals            `json:"totals"`
	Destinations []DestinationStat `json:"destinations"`
}

// DestinationStat is the per-destination slice of Stats.
type DestinationStat struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Enabled      bool       `json:"enabled"`
	SuccessCount int64      `json:"successCount"`
	FailureCount int64      `json:"failureCount"`
	LastSent     *time.Time `json:"lastSent,omitempty"`
	LastError    *string    `json:"lastError,omitempty"`
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Repo      Repository
	Registry  *Registry
	Cipher    *crypto.Cipher
	Sender    Sender
	Refresher Refresher
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	registry  *Registry
	cipher    *crypto.Cipher
	sender    Sender
	refresher Refresher
	logger    *logger.Logger
}

// NewService wires destination dependencies. Refresher may be nil during
// startup wiring; everything else is required.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "destinations repository required")
	}
	if params.Registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "destinations registry required")
	}
	if params.Cipher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "destinations cipher required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "destinations sender required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "destinations logger required")
	}
	return &service{
		repo:      params.Repo,
		registry:  params.Registry,
		cipher:    params.Cipher,
		sender:    params.Sender,
		refresher: params.Refresher,
		logger:    params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Destination, error) {
	if !nameRx.MatchString(params.Name) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, ErrInvalidName.Error())
	}
	if err := validateURL(params.URL); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, ErrInvalidURL.Error())
	}
	destType, err := parseType(params.Type)
	if err != nil {
		return nil, err
	}
	secretEnvelope, err := s.encryptSecret(params.SecretKey)
	if err != nil {
		return nil, err
	}

	destination := &models.Destination{
		Name:          params.Name,
		Type:          destType,
		URL:           params.URL,
		Method:        strings.ToUpper(normalizeMethod(params.Method)),
		EventTypes:    NormalizeEventTypes(params.EventTypes),
		Config:        configMap(params.Config),
		TimeoutMS:     normalizeTimeoutMS(params.TimeoutMS),
		RetryStrategy: datatypes.JSONMap(params.RetryStrategy),
		Enabled:       params.Enabled == nil || *params.Enabled,
	}
	if secretEnvelope != "" {
		destination.SecretKeyEncrypted = &secretEnvelope
	}

	if err := s.repo.Create(ctx, destination); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "destination name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create destination")
	}

	s.syncRegistry(ctx, destination)
	s.refreshRoutes(ctx)
	return destination, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	params = pagination.Normalize(params)
	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list destinations")
	}
	return &ListResult{Items: items, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	return s.find(ctx, id)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.Destination, error) {
	destination, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Type != nil {
		destType, err := parseType(*params.Type)
		if err != nil {
			return nil, err
		}
		destination.Type = destType
	}
	if params.URL != nil {
		if err := validateURL(*params.URL); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, ErrInvalidURL.Error())
		}
		destination.URL = *params.URL
	}
	if params.Method != nil {
		destination.Method = strings.ToUpper(normalizeMethod(*params.Method))
	}
	if params.EventTypes != nil {
		destination.EventTypes = NormalizeEventTypes(params.EventTypes)
	}
	if params.Config != nil {
		destination.Config = configMap(params.Config)
	}
	if params.SecretKey != nil {
		if *params.SecretKey == "" {
			destination.SecretKeyEncrypted = nil
		} else {
			envelope, err := s.encryptSecret(*params.SecretKey)
			if err != nil {
				return nil, err
			}
			destination.SecretKeyEncrypted = &envelope
		}
	}
	if params.TimeoutMS != nil {
		destination.TimeoutMS = normalizeTimeoutMS(*params.TimeoutMS)
	}
	if params.RetryStrategy != nil {
		destination.RetryStrategy = datatypes.JSONMap(params.RetryStrategy)
	}
	if params.Enabled != nil {
		destination.Enabled = *params.Enabled
	}

	if err := s.repo.Update(ctx, destination); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "destination name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update destination")
	}

	s.syncRegistry(ctx, destination)
	s.refreshRoutes(ctx)
	return destination, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	destination, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete destination")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "destination not found")
	}

	s.registry.Remove(destination.Name)
	s.refreshRoutes(ctx)
	return nil
}

func (s *service) Toggle(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	destination, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetEnabled(ctx, id, !destination.Enabled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle destination")
	}

	// Disabled destinations stay registered so re-enabling needs no reload.
	s.registry.SetStatus(updated.Name, updated.Enabled)
	s.refreshRoutes(ctx)
	return updated, nil
}

func (s *service) Test(ctx context.Context, id uuid.UUID, params TestParams) (*forward.Result, error) {
	destination, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	eventName := params.EventName
	if eventName == "" {
		eventName = "test.event"
	}
	properties := params.Properties
	if properties == nil {
		properties = map[string]any{"test": true}
	}
	event := transform.Event{
		ID:         uuid.NewString(),
		EventName:  eventName,
		Timestamp:  time.Now().UTC(),
		Properties: properties,
	}

	spec := TransformSpecFor(destination)
	fn := transform.Safe(transform.Compile(spec, s.logger), s.logger, destination.Name)
	payload, err := fn(event)
	if err != nil {
		payload = transform.FallbackPayload(event, err.Error())
	}

	result := s.sender.SendPayload(ctx, TargetFor(destination), payload)
	return &result, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate destinations")
	}
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list destinations")
	}

	stats := &Stats{Totals: *totals, Destinations: make([]DestinationStat, 0, len(rows))}
	for _, row := range rows {
		stats.Destinations = append(stats.Destinations, DestinationStat{
			ID:           row.ID,
			Name:         row.Name,
			Enabled:      row.Enabled,
			SuccessCount: row.SuccessCount,
			FailureCount: row.FailureCount,
			LastSent:     row.LastSent,
			LastError:    row.LastError,
		})
	}
	return stats, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination id required")
	}
	destination, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "destination not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find destination")
	}
	return destination, nil
}

// encryptSecret produces the at-rest envelope. Plaintext never reaches the
// database: without a master key the secret is rejected outright.
func (s *service) encryptSecret(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	if !s.cipher.Ready() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "secret key requires ENCRYPTION_MASTER_KEY to be configured")
	}
	envelope, err := s.cipher.Encrypt(secret)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt secret key")
	}
	return envelope, nil
}

func (s *service) syncRegistry(ctx context.Context, destination *models.Destination) {
	if err := RegisterModel(s.registry, destination); err != nil {
		s.logger.Error(s.logger.WithDestination(ctx, destination.Name), "sync destination registry", err)
	}
}

func (s *service) refreshRoutes(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.RefreshRoutes(ctx); err != nil {
		s.logger.Error(ctx, "refresh routes after destination change", err)
	}
}

func parseType(raw string) (enums.DestinationType, error) {
	if raw == "" {
		return enums.DestinationTypeWebhook, nil
	}
	destType, err := enums.ParseDestinationType(raw)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return destType, nil
}

func normalizeTimeoutMS(ms int) int {
	if ms <= 0 {
		return int(defaultTimeout / time.Millisecond)
	}
	return int(clampTimeout(ms) / time.Millisecond)
}

func configMap(config map[string]any) datatypes.JSONMap {
	if config == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(config)
}
