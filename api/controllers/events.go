package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	"github.com/eventgatehq/eventgate-backend/api/validators"
	eventsvc "github.com/eventgatehq/eventgate-backend/internal/events"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// EventsIngest accepts a new event and routes it to matching destinations.
func EventsIngest(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event service unavailable"))
			return
		}

		var payload ingestEventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Ingest(r.Context(), payload.toParams())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

// EventsList returns a page of stored events, optionally filtered by
// event name and user id.
func EventsList(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event service unavailable"))
			return
		}

		query := r.URL.Query()
		params := eventsvc.ListParams{
			Params:    pagination.FromQuery(query.Get("page"), query.Get("limit")),
			EventName: strings.TrimSpace(query.Get("eventName")),
			UserID:    strings.TrimSpace(query.Get("userId")),
		}

		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// EventsGet returns a single stored event by id.
func EventsGet(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id"))
			return
		}

		event, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, event)
	}
}

// EventsByUser returns a page of events attributed to a single user.
func EventsByUser(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event service unavailable"))
			return
		}

		userID := strings.TrimSpace(chi.URLParam(r, "userId"))
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user id is required"))
			return
		}

		query := r.URL.Query()
		list, err := svc.ListByUser(r.Context(), userID, pagination.FromQuery(query.Get("page"), query.Get("limit")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// EventsSearch returns events whose properties contain the given key/value pair.
func EventsSearch(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event service unavailable"))
			return
		}

		query := r.URL.Query()
		key := validators.SanitizeString(query.Get("key"), 255)
		value := validators.SanitizeString(query.Get("value"), 255)
		if key == "" || value == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "key and value query parameters are required"))
			return
		}

		list, err := svc.Search(r.Context(), key, value, pagination.FromQuery(query.Get("page"), query.Get("limit")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// EventsForward re-runs routing for a stored event and reports the
// per-route outcomes.
func EventsForward(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id"))
			return
		}

		results, err := svc.Forward(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, results)
	}
}

type ingestEventRequest struct {
	EventName  string         `json:"eventName" validate:"required,min=1,max=255"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (req ingestEventRequest) toParams() eventsvc.IngestParams {
	return eventsvc.IngestParams{
		EventName:  strings.TrimSpace(req.EventName),
		Timestamp:  req.Timestamp,
		Properties: req.Properties,
	}
}
