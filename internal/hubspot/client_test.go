package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{BaseURL: url, APIKey: "test-key", Timeout: 2 * time.Second}, testLogger())
}

func TestResolveOwner_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/crm/v3/objects/contacts/search" {
			t.Errorf("expected search path, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("expected Content-Type application/json, got %q", got)
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Limit != 1 {
			t.Errorf("expected limit 1, got %d", req.Limit)
		}
		if len(req.Properties) != 1 || req.Properties[0] != "hubspot_owner_id" {
			t.Errorf("expected only hubspot_owner_id property, got %v", req.Properties)
		}
		if len(req.FilterGroups) != 1 {
			t.Fatalf("expected 1 filter group, got %d", len(req.FilterGroups))
		}
		filters := req.FilterGroups[0].Filters
		if len(filters) != 2 {
			t.Fatalf("expected 2 filters, got %d", len(filters))
		}
		for i, name := range []string{"phone", "mobilephone"} {
			if filters[i].PropertyName != name || filters[i].Operator != "EQ" || filters[i].Value != "+34600111222" {
				t.Errorf("filter %d = %+v, want %s EQ +34600111222", i, filters[i], name)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":1,"results":[{"id":"501","properties":{"hubspot_owner_id":"638082","hs_object_id":"501"}}]}`))
	}))
	defer srv.Close()

	ownerID, found, err := newTestClient(srv.URL).ResolveOwner(context.Background(), "+34600111222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected owner to be found")
	}
	if ownerID != "638082" {
		t.Errorf("ownerID = %q, want 638082", ownerID)
	}
}

func TestResolveOwner_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":0,"results":[]}`))
	}))
	defer srv.Close()

	ownerID, found, err := newTestClient(srv.URL).ResolveOwner(context.Background(), "+34600111222")
	if err != nil {
		t.Fatalf("no match must not be an error, got %v", err)
	}
	if found || ownerID != "" {
		t.Errorf("expected no owner, got %q found=%v", ownerID, found)
	}
}

func TestResolveOwner_ContactWithoutOwner(t *testing.T) {
	bodies := map[string]string{
		"property null":    `{"results":[{"id":"1","properties":{"hubspot_owner_id":null}}]}`,
		"property empty":   `{"results":[{"id":"1","properties":{"hubspot_owner_id":""}}]}`,
		"property missing": `{"results":[{"id":"1","properties":{}}]}`,
		"no properties":    `{"results":[{"id":"1"}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			_, found, err := newTestClient(srv.URL).ResolveOwner(context.Background(), "123")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if found {
				t.Error("expected found=false")
			}
		})
	}
}

func TestResolveOwner_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"status":"error","message":"Authentication credentials not found.","category":"INVALID_AUTHENTICATION"}`, 401, "Authentication credentials not found."},
		{"rate limited", http.StatusTooManyRequests, `{"status":"error","message":"You have reached your secondly limit.","category":"RATE_LIMITS"}`, 429, "You have reached your secondly limit."},
		{"server error no body", http.StatusInternalServerError, ``, 500, ""},
		{"malformed json", http.StatusOK, `{"results":[`, 200, ""},
		{"missing results", http.StatusOK, `{"total":0}`, 200, ""},
		{"results wrong type", http.StatusOK, `{"results":"nope"}`, 200, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, found, err := newTestClient(srv.URL).ResolveOwner(context.Background(), "+34600111222")
			if err == nil {
				t.Fatal("expected error")
			}
			if found {
				t.Error("expected found=false on error")
			}
			var rerr *ResolutionError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected *ResolutionError, got %T", err)
			}
			if rerr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", rerr.StatusCode, tt.wantStatus)
			}
			if rerr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", rerr.Message, tt.wantMsg)
			}
		})
	}
}

func TestResolveOwner_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, _, err := newTestClient(url).ResolveOwner(context.Background(), "1")
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ResolutionError, got %v", err)
	}
	if rerr.Op != "sending request" {
		t.Errorf("Op = %q, want sending request", rerr.Op)
	}
}

func TestResolveOwner_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := newTestClient(srv.URL).ResolveOwner(ctx, "1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestResolveOwner_RateLimitedLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "k", Rate: rate.Every(time.Hour), Burst: 1}, testLogger())

	if _, _, err := c.ResolveOwner(context.Background(), "1"); err != nil {
		t.Fatalf("first request should pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := c.ResolveOwner(ctx, "1")

	var rerr *ResolutionError
	if !errors.As(err, &rerr) || rerr.Op != "rate limit" {
		t.Fatalf("expected rate limit ResolutionError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
}

func TestResolutionErrorMessage(t *testing.T) {
	err := &ResolutionError{Op: "contact search", StatusCode: 429, Message: "slow down"}
	want := "hubspot: contact search (status 429): slow down"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestConfigured(t *testing.T) {
	if NewClient(ClientConfig{}, testLogger()).Configured() {
		t.Error("client without api key should not be configured")
	}
	if !NewClient(ClientConfig{APIKey: "k"}, testLogger()).Configured() {
		t.Error("client with api key should be configured")
	}
}
