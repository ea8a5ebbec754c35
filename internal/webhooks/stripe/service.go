package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/internal/events"
	"github.com/eventgatehq/eventgate-backend/pkg/db"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

const defaultReprocessLimit = 50

// Ingester persists a normalized application event. Satisfied by the events
// service.
type Ingester interface {
	Ingest(ctx context.Context, params events.IngestParams) (*models.Event, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Receipt is the provider-facing acknowledgement body.
type Receipt struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// ReprocessResult reports the outcome for one reprocessed row.
type ReprocessResult struct {
	ID              uuid.UUID `json:"id"`
	ProviderEventID string    `json:"providerEventId"`
	EventType       string    `json:"eventType"`
	Processed       bool      `json:"processed"`
	Error           string    `json:"error,omitempty"`
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Ingester          Ingester
	WebhookSecret     string
	Logger            *logger.Logger
}

// Service verifies, dedupes, stores, and dispatches inbound Stripe webhooks.
type Service struct {
	repo     Repository
	txRunner txRunner
	ingester Ingester
	secret   string
	logger   *logger.Logger
}

// NewService wires the receiver. The webhook secret may be empty; handling
// then rejects every delivery until it is configured.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider event repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Ingester == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event ingester required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		ingester: params.Ingester,
		secret:   params.WebhookSecret,
		logger:   params.Logger,
	}, nil
}

// HandleWebhook verifies the signature over the raw body, dedupes by provider
// event id, then stores and dispatches in one transaction. The row commits
// even when the handler fails; only storage errors surface to the caller.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*Receipt, error) {
	if s.secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe webhook secret not configured")
	}
	event, err := webhook.ConstructEvent(payload, sigHeader, s.secret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify stripe signature")
	}

	ctx = s.logger.WithFields(ctx, map[string]any{
		"provider_event_id": event.ID,
		"event_type":        string(event.Type),
	})

	if _, err := s.repo.FindByProviderEventID(ctx, event.ID); err == nil {
		s.logger.Info(ctx, "duplicate provider event acknowledged")
		return &Receipt{Received: true, Duplicate: true}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up provider event")
	}

	row := providerEventRow(&event, payload)
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		_, dispatchErr := s.dispatch(ctx, repo, row, &event)
		return dispatchErr
	})
	if err != nil {
		// Concurrent delivery of the same event can slip past the lookup;
		// the unique constraint settles it.
		if db.IsUniqueViolation(err, "") {
			s.logger.Info(ctx, "duplicate provider event acknowledged")
			return &Receipt{Received: true, Duplicate: true}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider event")
	}
	return &Receipt{Received: true}, nil
}

// ReprocessUnprocessed replays stored rows whose handler never succeeded,
// oldest first, each in its own transaction.
func (s *Service) ReprocessUnprocessed(ctx context.Context, limit int) ([]ReprocessResult, error) {
	if limit <= 0 {
		limit = defaultReprocessLimit
	}
	rows, err := s.repo.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unprocessed provider events")
	}

	results := make([]ReprocessResult, 0, len(rows))
	for i := range rows {
		results = append(results, s.reprocessRow(ctx, &rows[i]))
	}
	return results, nil
}

// Stats aggregates the inbound table.
func (s *Service) Stats(ctx context.Context) (*Totals, error) {
	totals, err := s.repo.Aggregate(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate provider events")
	}
	return totals, nil
}

type dispatchOutcome struct {
	processed  bool
	handlerErr error
}

// dispatch runs the handler table for one stored row and persists the
// outcome on it. The returned error is a storage error; handler failures are
// recorded on the row and reported through the outcome.
func (s *Service) dispatch(ctx context.Context, repo Repository, row *models.ProviderEvent, event *stripe.Event) (dispatchOutcome, error) {
	now := time.Now().UTC()

	handler, ok := handlerTable[event.Type]
	if !ok {
		s.logger.Info(ctx, "no handler for provider event type, marked processed")
		return dispatchOutcome{processed: true}, repo.MarkProcessed(ctx, row.ID, now)
	}
	if err := handler(ctx, s, event); err != nil {
		s.logger.Error(ctx, "provider event handler failed, row left unprocessed", err)
		return dispatchOutcome{handlerErr: err}, repo.RecordError(ctx, row.ID, err.Error(), now)
	}
	return dispatchOutcome{processed: true}, repo.MarkProcessed(ctx, row.ID, now)
}

func (s *Service) reprocessRow(ctx context.Context, row *models.ProviderEvent) ReprocessResult {
	result := ReprocessResult{
		ID:              row.ID,
		ProviderEventID: row.ProviderEventID,
		EventType:       row.EventType,
	}
	ctx = s.logger.WithFields(ctx, map[string]any{
		"provider_event_id": row.ProviderEventID,
		"event_type":        row.EventType,
	})

	var event stripe.Event
	if err := json.Unmarshal(row.Data, &event); err != nil {
		result.Error = "stored payload does not decode"
		if recordErr := s.repo.RecordError(ctx, row.ID, result.Error, time.Now().UTC()); recordErr != nil {
			s.logger.Error(ctx, "record provider event error", recordErr)
		}
		return result
	}

	var outcome dispatchOutcome
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = s.dispatch(ctx, s.repo.WithTx(tx), row, &event)
		return txErr
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Processed = outcome.processed
	if outcome.handlerErr != nil {
		result.Error = outcome.handlerErr.Error()
	}
	return result
}

func providerEventRow(event *stripe.Event, payload []byte) *models.ProviderEvent {
	providerTimestamp := time.Unix(event.Created, 0).UTC()
	row := &models.ProviderEvent{
		ProviderEventID:   event.ID,
		ProviderType:      ingestSource,
		EventType:         string(event.Type),
		ProviderTimestamp: &providerTimestamp,
		Data:              datatypes.JSON(payload),
	}
	if event.Data != nil {
		if id, ok := event.Data.Object["id"].(string); ok && id != "" {
			row.ObjectID = &id
		}
		if objectType, ok := event.Data.Object["object"].(string); ok && objectType != "" {
			row.ObjectType = &objectType
		}
	}
	return row
}
