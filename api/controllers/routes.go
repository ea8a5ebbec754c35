package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	"github.com/eventgatehq/eventgate-backend/api/validators"
	routesvc "github.com/eventgatehq/eventgate-backend/internal/routes"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// RoutesCreate registers a new routing rule binding a transformation to a
// destination.
func RoutesCreate(svc routesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		var payload createRouteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.Create(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, route)
	}
}

// RoutesList returns a page of routing rules.
func RoutesList(svc routesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
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

// RoutesGet returns a single routing rule by id.
func RoutesGet(svc routesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		id, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, route)
	}
}

// RoutesUpdate applies a partial update to a routing rule.
func RoutesUpdate(svc routesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		id, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateRouteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.Update(r.Context(), id, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, route)
	}
}

// RoutesDelete removes a routing rule.
func RoutesDelete(svc routesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		id, err := parseRouteID(r)
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

// RoutesToggle flips a routing rule's enabled flag.
func RoutesToggle(svc routesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		id, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.Toggle(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, route)
	}
}

// RoutesTest evaluates a routing rule against a throwaway event and returns
// whether it would match plus the payload the destination would receive.
// Nothing is delivered.
func RoutesTest(svc routesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		id, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload testRouteRequest
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

func parseRouteID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid route id")
	}
	return id, nil
}

type createRouteRequest struct {
	Name             string         `json:"name" validate:"required,min=1,max=100"`
	Description      *string        `json:"description,omitempty"`
	EventTypes       any            `json:"eventTypes,omitempty"`
	TransformationID string         `json:"transformationId" validate:"required,uuid"`
	DestinationID    string         `json:"destinationId" validate:"required,uuid"`
	Condition        map[string]any `json:"condition,omitempty"`
	Priority         *int           `json:"priority,omitempty"`
	Enabled          *bool          `json:"enabled,omitempty"`
}

func (req createRouteRequest) toParams() (routesvc.CreateParams, error) {
	transformationID, err := uuid.Parse(req.TransformationID)
	if err != nil {
		return routesvc.CreateParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transformation id")
	}
	destinationID, err := uuid.Parse(req.DestinationID)
	if err != nil {
		return routesvc.CreateParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid destination id")
	}
	return routesvc.CreateParams{
		Name:             strings.TrimSpace(req.Name),
		Description:      req.Description,
		EventTypes:       req.EventTypes,
		TransformationID: transformationID,
		DestinationID:    destinationID,
		Condition:        req.Condition,
		Priority:         req.Priority,
		Enabled:          req.Enabled,
	}, nil
}

type updateRouteRequest struct {
	Description      *string        `json:"description,omitempty"`
	EventTypes       any            `json:"eventTypes,omitempty"`
	TransformationID *string        `json:"transformationId,omitempty" validate:"omitempty,uuid"`
	DestinationID    *string        `json:"destinationId,omitempty" validate:"omitempty,uuid"`
	Condition        map[string]any `json:"condition,omitempty"`
	Priority         *int           `json:"priority,omitempty"`
	Enabled          *bool          `json:"enabled,omitempty"`
}

func (req updateRouteRequest) toParams() (routesvc.UpdateParams, error) {
	params := routesvc.UpdateParams{
		Description: req.Description,
		EventTypes:  req.EventTypes,
		Condition:   req.Condition,
		Priority:    req.Priority,
		Enabled:     req.Enabled,
	}
	if req.TransformationID != nil {
		id, err := uuid.Parse(*req.TransformationID)
		if err != nil {
			return routesvc.UpdateParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transformation id")
		}
		params.TransformationID = &id
	}
	if req.DestinationID != nil {
		id, err := uuid.Parse(*req.DestinationID)
		if err != nil {
			return routesvc.UpdateParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid destination id")
		}
		params.DestinationID = &id
	}
	return params, nil
}

type testRouteRequest struct {
	EventName  string         `json:"eventName,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (req testRouteRequest) toParams() routesvc.TestParams {
	return routesvc.TestParams{
		EventName:  req.EventName,
		Timestamp:  req.Timestamp,
		Properties: req.Properties,
	}
}
