package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// APIKey guards the API surface with the shared key. Clients present it via
// X-API-Key, Api-Key, or an Authorization bearer token. The comparison is
// constant time and failures carry no hint about which part was wrong.
func APIKey(key string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedKey(r)
			if key == "" || presented == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or missing API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("Api-Key")); v != "" {
		return v
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
