package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowpbx/callrouter/internal/routing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type application/json, got %q", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("expected bare payload, got %s", got)
	}
}

func TestWriteJSON_TransferPayload(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, routing.Response{Actions: []routing.Action{{
		Action: "transfer",
		To: []routing.Destination{
			routing.AgentDestination("42"),
			routing.PhoneDestination("+34600000000"),
		},
	}}})

	want := `{"actions":[{"action":"transfer","to":[{"type":"user","id":"42"},{"type":"phone_number","number":"+34600000000"}]}]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s\nwant   %s", got, want)
	}
}

func TestWriteJSON_CustomStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "down" {
		t.Errorf("expected status=down, got %v", body["status"])
	}
}
