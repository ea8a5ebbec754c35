package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/types"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) types.Envelope {
	t.Helper()
	var body types.Envelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return body
}

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if !body.Success || body.Error {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorUsesCallerMessageForValidation(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "event name is required").
		WithDetails(map[string]string{"field": "eventName"})
	WriteError(context.Background(), newTestLogger(), w, err)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body.Success || !body.Error {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if body.Message != "event name is required" {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if body.Details == nil {
		t.Fatal("expected details in public payload")
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), newTestLogger(), w, errors.New("boom: secret dsn"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body.Message != "internal server error" {
		t.Fatalf("internal detail leaked: %q", body.Message)
	}
	if body.Details != nil {
		t.Fatal("details should be omitted for internal errors")
	}
	if body.Stack != "" {
		t.Fatal("stack must not render outside dev mode")
	}
}

func TestWriteErrorSignatureStaysGeneric(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeSignature, "hmac mismatch on segment 2")
	WriteError(context.Background(), newTestLogger(), w, err)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body.Message != "signature verification failed" {
		t.Fatalf("signature detail leaked: %q", body.Message)
	}
}

func TestWriteErrorDevModeAddsStack(t *testing.T) {
	SetDevMode(true)
	t.Cleanup(func() { SetDevMode(false) })

	w := httptest.NewRecorder()
	WriteError(context.Background(), newTestLogger(), w, errors.New("boom"))

	body := decodeEnvelope(t, w)
	if body.Stack == "" {
		t.Fatal("expected stack in dev mode 5xx")
	}

	w = httptest.NewRecorder()
	WriteError(context.Background(), newTestLogger(), w, pkgerrors.New(pkgerrors.CodeNotFound, "no such route"))
	body = decodeEnvelope(t, w)
	if body.Stack != "" {
		t.Fatal("stack must not render on 4xx")
	}
}
