package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// maxRequestIDLength bounds caller-supplied ids so log fields stay sane.
const maxRequestIDLength = 64

// RequestID tags every request with a correlation id, minting one when the
// caller did not send a usable one. The id is echoed back on the response
// and attached to the request's log context.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if reqID == "" || len(reqID) > maxRequestIDLength {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
