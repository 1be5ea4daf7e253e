package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"formguard/internal/observability"
)

// LogContext copies chi's request ID into the logging context so
// loggers derived via observability.FromContext carry it. Must run
// after chi's RequestID middleware.
func LogContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
				r = r.WithContext(observability.WithRequestID(r.Context(), reqID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
