package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	"github.com/eventgatehq/eventgate-backend/api/validators"
	destsvc "github.com/eventgatehq/eventgate-backend/internal/destinations"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// DestinationsCreate registers a new delivery target.
func DestinationsCreate(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		var payload createDestinationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		destination, err := svc.Create(r.Context(), payload.toParams())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, destination)
	}
}

// DestinationsList returns a page of destinations.
func DestinationsList(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		query := r.URL.Query()
		list, err := svc.List(r.Context(), pagination.FromQuery(query.Get("page"), query.Get("limit")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// DestinationsGet returns a single destination by id.
func DestinationsGet(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		id, err := parseDestinationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		destination, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, destination)
	}
}

// DestinationsUpdate applies a partial update to a destination.
func DestinationsUpdate(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		id, err := parseDestinationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateDestinationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		destination, err := svc.Update(r.Context(), id, payload.toParams())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, destination)
	}
}

// DestinationsDelete removes a destination.
func DestinationsDelete(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		id, err := parseDestinationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}

// DestinationsToggle flips a destination's enabled flag.
func DestinationsToggle(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		id, err := parseDestinationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		destination, err := svc.Toggle(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, destination)
	}
}

// DestinationsTest sends a throwaway event through a destination and
// returns the delivery result without touching stored counters.
func DestinationsTest(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		id, err := parseDestinationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload testDestinationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Test(r.Context(), id, payload.toParams())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// DestinationsStats reports table-wide totals plus per-destination
// delivery counters.
func DestinationsStats(svc destsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "destination service unavailable"))
			return
		}

		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stats)
	}
}

func parseDestinationID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid destination id")
	}
	return id, nil
}

type createDestinationRequest struct {
	Name          string         `json:"name" validate:"required,min=1,max=100"`
	Type          string         `json:"type,omitempty"`
	URL           string         `json:"url" validate:"required"`
	Method        string         `json:"method,omitempty"`
	EventTypes    any            `json:"eventTypes,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
	SecretKey     string         `json:"secretKey,omitempty"`
	Timeout       int            `json:"timeout,omitempty" validate:"omitempty,min=0"`
	RetryStrategy map[string]any `json:"retryStrategy,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty"`
}

func (req createDestinationRequest) toParams() destsvc.CreateParams {
	return destsvc.CreateParams{
		Name:          strings.TrimSpace(req.Name),
		Type:          req.Type,
		URL:           strings.TrimSpace(req.URL),
		Method:        req.Method,
		EventTypes:    req.EventTypes,
		Config:        req.Config,
		SecretKey:     req.SecretKey,
		TimeoutMS:     req.Timeout,
		RetryStrategy: req.RetryStrategy,
		Enabled:       req.Enabled,
	}
}

type updateDestinationRequest struct {
	Type          *string        `json:"type,omitempty"`
	URL           *string        `json:"url,omitempty"`
	Method        *string        `json:"method,omitempty"`
	EventTypes    any            `json:"eventTypes,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
	SecretKey     *string        `json:"secretKey,omitempty"`
	Timeout       *int           `json:"timeout,omitempty" validate:"omitempty,min=0"`
	RetryStrategy map[string]any `json:"retryStrategy,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty"`
}

func (req updateDestinationRequest) toParams() destsvc.UpdateParams {
	return destsvc.UpdateParams{
		Type:          req.Type,
		URL:           req.URL,
		Method:        req.Method,
		EventTypes:    req.EventTypes,
		Config:        req.Config,
		SecretKey:     req.SecretKey,
		TimeoutMS:     req.Timeout,
		RetryStrategy: req.RetryStrategy,
		Enabled:       req.Enabled,
	}
}

type testDestinationRequest struct {
	EventName  string         `json:"eventName,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (req testDestinationRequest) toParams() destsvc.TestParams {
	return destsvc.TestParams{
		EventName:  req.EventName,
		Properties: req.Properties,
	}
}
