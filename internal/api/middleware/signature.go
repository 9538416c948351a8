package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/flowpbx/callrouter/internal/signature"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// MaxWebhookBodySize is the upper limit for webhook request bodies (1 MB).
const MaxWebhookBodySize = 1 << 20

// VerifySignature returns middleware that authenticates webhook requests.
// The raw body is read once, checked against the signature header and put
// back on the request so handlers can decode it. Rejected requests get a
// 401 with a plain-text reason and never reach next.
func VerifySignature(v *signature.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := chimw.GetReqID(r.Context())

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodySize))
			if err != nil {
				if v.Enabled() {
					// A body we could not read in full cannot match its HMAC.
					slog.Warn("webhook body unreadable", "request_id", reqID, "error", err)
					rejectUnauthorized(w, r, signature.ErrInvalidSignature.Error())
					return
				}
				slog.Warn("webhook body unreadable, continuing in open mode", "request_id", reqID, "error", err)
			}

			if err := v.Verify(body, r.Header.Get(signature.Header)); err != nil {
				reason := err.Error()
				var authErr *signature.AuthenticationError
				if errors.As(err, &authErr) {
					reason = authErr.Reason
				}
				rejectUnauthorized(w, r, reason)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

func rejectUnauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Warn("webhook signature rejected",
		"request_id", chimw.GetReqID(r.Context()),
		"reason", reason,
		"remote_addr", r.RemoteAddr,
	)
	http.Error(w, "unauthorized: "+reason, http.StatusUnauthorized)
}
