package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const testAPIKey = "sk_eventgate_test"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyRejectsMissingKey(t *testing.T) {
	handler := APIKey(testAPIKey, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAPIKeyRejectsWrongKey(t *testing.T) {
	handler := APIKey(testAPIKey, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("X-API-Key", "sk_eventgate_wrong")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAPIKeyAcceptsHeaderVariants(t *testing.T) {
	cases := []struct {
		name   string
		header string
		value  string
	}{
		{name: "x-api-key", header: "X-API-Key", value: testAPIKey},
		{name: "api-key", header: "Api-Key", value: testAPIKey},
		{name: "bearer", header: "Authorization", value: "Bearer " + testAPIKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := APIKey(testAPIKey, nil)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
			req.Header.Set(tc.header, tc.value)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d", resp.Code)
			}
		})
	}
}

func TestAPIKeyIgnoresNonBearerAuthorization(t *testing.T) {
	handler := APIKey(testAPIKey, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Authorization", "Basic "+testAPIKey)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAPIKeyRejectsAllWhenServerKeyUnset(t *testing.T) {
	handler := APIKey("", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("X-API-Key", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
