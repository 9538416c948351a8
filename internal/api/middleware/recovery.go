package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// errorBody is the JSON body of middleware-generated error responses.
type errorBody struct {
	Error string `json:"error"`
}

// Recoverer returns middleware that recovers from panics and logs the stack
// trace using slog. If fallback is non-nil and nothing has been written yet,
// fallback serves the response; otherwise a 500 JSON error is returned.
func Recoverer(fallback http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.Error("panic recovered",
					"request_id", chimw.GetReqID(r.Context()),
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				if ww.Status() != 0 {
					// Headers already sent; nothing sensible left to write.
					return
				}
				if fallback != nil {
					fallback.ServeHTTP(ww, r)
					return
				}

				ww.Header().Set("Content-Type", "application/json")
				ww.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(ww).Encode(errorBody{Error: "internal server error"}) //nolint:errcheck
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
