package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/eventgatehq/eventgate-backend/pkg/config"
)

const localDevOrigin = "http://localhost:3000"

// CORS applies the allowed-origin policy. CORS_ALLOW_ALL opens the surface to
// any origin; otherwise CLIENT_ORIGIN is a comma-separated origin list, with
// the local dev origin appended outside production.
func CORS(cfg config.CORSConfig, dev bool) func(http.Handler) http.Handler {
	origins := []string{"*"}
	if !cfg.AllowAll {
		origins = origins[:0]
		for _, origin := range strings.Split(cfg.ClientOrigin, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		if dev {
			origins = append(origins, localDevOrigin)
		}
	}

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "Api-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}).Handler
}
