package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	"github.com/eventgatehq/eventgate-backend/pkg/cache"
	"github.com/eventgatehq/eventgate-backend/pkg/config"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthLive reports process liveness.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-EventGate-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness to serve traffic. The database must answer a
// ping; the cache is reported but never fails readiness since the API runs
// without it.
func HealthReady(cfg *config.Config, database pinger, cachePing cache.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-EventGate-Env", cfg.App.Env)

		if database == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"))
			return
		}
		if err := database.Ping(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
			return
		}

		checks := map[string]string{
			"database": "ok",
			"cache":    cacheStatus(r.Context(), cachePing),
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func cacheStatus(ctx context.Context, cachePing cache.Pinger) string {
	if cachePing == nil {
		return "disabled"
	}
	if err := cachePing.Ping(ctx); err != nil {
		if errors.Is(err, cache.ErrUnavailable) {
			return "disabled"
		}
		return "unavailable"
	}
	return "ok"
}
