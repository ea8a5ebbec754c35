package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	"github.com/eventgatehq/eventgate-backend/api/validators"
	transformsvc "github.com/eventgatehq/eventgate-backend/internal/transformations"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// TransformationsCreate registers a new payload transformation.
func TransformationsCreate(svc transformsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transformation service unavailable"))
			return
		}

		var payload createTransformationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transformation, err := svc.Create(r.Context(), payload.toParams())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, transformation)
	}
}

// TransformationsList returns a page of transformations.
func TransformationsList(svc transformsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transformation service unavailable"))
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

// TransformationsGet returns a single transformation by id.
func TransformationsGet(svc transformsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transformation service unavailable"))
			return
		}

		id, err := parseTransformationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transformation, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transformation)
	}
}

// TransformationsUpdate applies a partial update to a transformation.
func TransformationsUpdate(svc transformsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transformation service unavailable"))
			return
		}

		id, err := parseTransformationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateTransformationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transformation, err := svc.Update(r.Context(), id, payload.toParams())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transformation)
	}
}

// TransformationsDelete removes a transformation. Deletion fails while any
// route still references it.
func TransformationsDelete(svc transformsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transformation service unavailable"))
			return
		}

		id, err := parseTransformationID(r)
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

// TransformationsToggle flips a transformation's enabled flag.
func TransformationsToggle(svc transformsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transformation service unavailable"))
			return
		}

		id, err := parseTransformationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transformation, err := svc.Toggle(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transformation)
	}
}

// TransformationsTest applies a transformation to a throwaway event and
// returns the transformed payload without delivering anything.
func TransformationsTest(svc transformsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transformation service unavailable"))
			return
		}

		id, err := parseTransformationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload testTransformationRequest
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

func parseTransformationID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transformation id")
	}
	return id, nil
}

type createTransformationRequest struct {
	Name        string         `json:"name" validate:"required,min=1,max=100"`
	Description *string        `json:"description,omitempty"`
	Type        string         `json:"type" validate:"required"`
	Config      map[string]any `json:"config,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
}

func (req createTransformationRequest) toParams() transformsvc.CreateParams {
	return transformsvc.CreateParams{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Type:        req.Type,
		Config:      req.Config,
		Enabled:     req.Enabled,
	}
}

type updateTransformationRequest struct {
	Description *string        `json:"description,omitempty"`
	Type        *string        `json:"type,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
}

func (req updateTransformationRequest) toParams() transformsvc.UpdateParams {
	return transformsvc.UpdateParams{
		Description: req.Description,
		Type:        req.Type,
		Config:      req.Config,
		Enabled:     req.Enabled,
	}
}

type testTransformationRequest struct {
	EventName  string         `json:"eventName,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (req testTransformationRequest) toParams() transformsvc.TestParams {
	return transformsvc.TestParams{
		EventName:  req.EventName,
		Timestamp:  req.Timestamp,
		Properties: req.Properties,
	}
}
