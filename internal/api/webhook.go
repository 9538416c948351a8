package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/flowpbx/callrouter/internal/routing"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// incomingNumberField is the payload key carrying the caller number.
const incomingNumberField = "incoming_number"

var errUnsupportedNumber = errors.New("incoming_number is neither a string nor a number")

// handleRouteCall routes one inbound call. The response is always 200 with
// a transfer payload; an unreadable payload routes like a call without a
// caller number.
func (s *Server) handleRouteCall(w http.ResponseWriter, r *http.Request) {
	reqID := chimw.GetReqID(r.Context())

	ev, err := parseInboundCall(r)
	if err != nil {
		slog.Warn("webhook payload unreadable, treating as missing number",
			"request_id", reqID,
			"error", err,
		)
	}

	d := s.calls.Route(r.Context(), ev)

	attrs := []any{
		"request_id", reqID,
		"outcome", d.Outcome,
		"number", d.Number,
		"destinations", len(d.Response.Destinations()),
	}
	if d.AgentID != "" {
		attrs = append(attrs, "agent_id", d.AgentID)
	}
	slog.Info("call routed", attrs...)

	writeJSON(w, http.StatusOK, d.Response)
}

// handleFallback answers with the fallback-only transfer.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.calls.FallbackResponse())
}

// parseInboundCall extracts the caller number from a form or JSON body.
// Anything other than a form is decoded as JSON, matching the content
// types the webhook has always accepted. The returned event is usable even
// when err is non-nil.
func parseInboundCall(r *http.Request) (routing.InboundCallEvent, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return routing.InboundCallEvent{}, fmt.Errorf("parsing form: %w", err)
		}
		return routing.InboundCallEvent{IncomingNumber: r.PostForm.Get(incomingNumberField)}, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return routing.InboundCallEvent{}, fmt.Errorf("reading body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return routing.InboundCallEvent{}, nil
	}

	var payload struct {
		IncomingNumber json.RawMessage `json:"incoming_number"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return routing.InboundCallEvent{}, fmt.Errorf("decoding json: %w", err)
	}

	number, err := numberText(payload.IncomingNumber)
	if err != nil {
		return routing.InboundCallEvent{}, err
	}
	return routing.InboundCallEvent{IncomingNumber: number}, nil
}

// numberText returns the caller number from its raw JSON value. Strings are
// unquoted, numbers keep their literal text, null and absent give "".
func numberText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	return "", errUnsupportedNumber
}
