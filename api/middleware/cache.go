package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/eventgatehq/eventgate-backend/pkg/cache"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// cachedResponse is the stored form of a cacheable GET response.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// ResponseCache serves GET responses from the cache and sweeps cached variants
// when a mutation on the same resource succeeds. Cache failures are logged and
// swallowed; the request proceeds as if caching were off.
func ResponseCache(store cache.Store, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !store.IsConnected() {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet:
				serveCached(store, ttl, logg, next, w, r)
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				invalidateAfter(store, logg, next, w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func serveCached(store cache.Store, ttl time.Duration, logg *logger.Logger, next http.Handler, w http.ResponseWriter, r *http.Request) {
	key := cache.ResponseKey(r.URL.Path, r.URL.RawQuery)

	stored, err := store.Get(r.Context(), key)
	if err == nil {
		var record cachedResponse
		if decodeErr := json.Unmarshal([]byte(stored), &record); decodeErr == nil && record.Status != 0 {
			if record.ContentType != "" {
				w.Header().Set("Content-Type", record.ContentType)
			}
			w.WriteHeader(record.Status)
			_, _ = w.Write(record.Body)
			return
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		warnCache(r, logg, "response cache read failed", err)
	}

	rec := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(rec, r)

	// Only successful JSON bodies are worth replaying.
	if rec.statusOrOK() != http.StatusOK {
		return
	}
	contentType := rec.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return
	}

	payload, err := json.Marshal(cachedResponse{
		Status:      http.StatusOK,
		ContentType: contentType,
		Body:        rec.body.Bytes(),
	})
	if err != nil {
		warnCache(r, logg, "encode cached response failed", err)
		return
	}
	if err := store.Set(r.Context(), key, string(payload), ttl); err != nil {
		warnCache(r, logg, "response cache write failed", err)
	}
}

func invalidateAfter(store cache.Store, logg *logger.Logger, next http.Handler, w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	next.ServeHTTP(rec, r)

	status := rec.statusOrOK()
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return
	}

	base, id := resourceParts(r.URL.Path)
	keys := []string{
		cache.ResponseKey(r.URL.Path, ""),
		cache.ResponseKey(base, ""),
	}
	if id != "" {
		keys = append(keys, cache.ResponseKey(base+"/"+id, ""))
	}

	err := store.Del(r.Context(), keys...)
	_, patternErr := store.DeleteByPattern(r.Context(), cache.ResponseKeyPattern(base))
	if combined := multierr.Append(err, patternErr); combined != nil {
		warnCache(r, logg, "response cache invalidation failed", combined)
	}
}

// resourceParts splits "/api/destinations/123/toggle" into the collection base
// "/api/destinations" and the resource id "123".
func resourceParts(path string) (string, string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return path, ""
	}
	base := "/" + segments[0] + "/" + segments[1]
	if len(segments) >= 3 {
		return base, segments[2]
	}
	return base, ""
}

func warnCache(r *http.Request, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithField(r.Context(), "reason", err.Error()), msg)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
