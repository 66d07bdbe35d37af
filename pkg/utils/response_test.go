package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "Invalid JSON")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body := rec.Body.String(); body != "{\"error\":\"Invalid JSON\"}\n" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEChunk(rec, rec, map[string]string{"event": "delta"})

	if got := rec.Body.String(); got != "data: {\"event\":\"delta\"}\n\n" {
		t.Fatalf("unexpected chunk %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flush")
	}
}
