package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"formguard/internal/config"
	"formguard/internal/csrf"
	"formguard/internal/domain"
	"formguard/internal/observability"
)

const tokenHandlerKey contextKey = "csrf_handler"

// HandlerFactory builds a request-scoped token handler. The factory
// decides which storage backend and token sources the handler uses.
type HandlerFactory func(w http.ResponseWriter, r *http.Request) *csrf.Handler

// NewHandlerFactory wires a factory from configuration: cookie-backed
// or session-backed secret storage, with form-field and header token
// sources consulted in that order.
func NewHandlerFactory(cfg *config.Config, sessionRepo domain.SessionRepository) HandlerFactory {
	return func(w http.ResponseWriter, r *http.Request) *csrf.Handler {
		var storage csrf.TokenStorage
		if cfg.CSRFStorage == config.StorageSession {
			// Session may be nil on unauthenticated requests; the
			// storage then reads as absent and rejects writes.
			session, _ := GetSession(r.Context())
			storage = csrf.NewSessionStorage(r.Context(), sessionRepo, session)
		} else {
			storage = csrf.NewCookieStorage(w, r, http.Cookie{
				Name:     cfg.CSRFCookieName,
				Path:     "/",
				MaxAge:   cfg.CSRFCookieMaxAge,
				HttpOnly: true,
				Secure:   cfg.CSRFCookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		sources := []csrf.TokenSource{
			csrf.NewFormSource(r, cfg.CSRFFormField),
			csrf.NewHeaderSource(r, cfg.CSRFHeaderName),
		}

		return csrf.NewHandler(storage, sources, &csrf.Options{
			TokenLength:      cfg.CSRFTokenLength,
			ValidatedMethods: cfg.ProtectedMethods(),
			OnNewSecret:      observability.CSRFSecretsGenerated.Inc,
		})
	}
}

// ProtectOptions tunes the Protect middleware.
type ProtectOptions struct {
	// FailureHandler is invoked instead of the default 400 JSON
	// response when validation rejects a request. The rejection reason
	// is available via FailureReason on the request context.
	FailureHandler http.Handler

	// ExemptPaths skip validation entirely (prefix match).
	ExemptPaths []string
}

// Protect validates anti-forgery tokens for state-changing requests.
//
// Flow per request:
//  1. Skip exempt path prefixes (health, metrics by default)
//  2. Build a request-scoped token handler and place it in the context
//     so downstream handlers can mint masked tokens
//  3. Establish the secret (storage side effect happens on every
//     request, including safe methods)
//  4. For protected methods, extract a candidate from form data or
//     header and validate it against the secret
//  5. On failure: log a security event, count it, and reject with 400
//     (or hand off to the configured FailureHandler)
func Protect(newHandler HandlerFactory, opts *ProtectOptions) func(http.Handler) http.Handler {
	if opts == nil {
		opts = &ProtectOptions{}
	}
	exempt := opts.ExemptPaths
	if exempt == nil {
		exempt = []string{"/health", "/metrics"}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}

			handler := newHandler(w, r)
			r = r.WithContext(WithTokenHandler(r.Context(), handler))

			if err := handler.ValidateRequest(r); err != nil {
				var vErr *csrf.ValidationError
				if !errors.As(err, &vErr) {
					// Storage failure, not a token mismatch
					observability.FromContext(r.Context()).Error("csrf secret unavailable",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
					return
				}

				reason := failureReason(vErr)
				logCSRFFailure(r, reason)
				observability.CSRFValidationsTotal.WithLabelValues("rejected").Inc()
				observability.CSRFFailuresTotal.WithLabelValues(reason).Inc()

				if opts.FailureHandler != nil {
					opts.FailureHandler.ServeHTTP(w, r.WithContext(withFailureReason(r.Context(), vErr)))
					return
				}
				http.Error(w, `{"error":"Invalid or missing CSRF token"}`, http.StatusBadRequest)
				return
			}

			if handler.ValidatesMethod(r.Method) {
				observability.CSRFValidationsTotal.WithLabelValues("accepted").Inc()
			} else {
				observability.CSRFValidationsTotal.WithLabelValues("skipped").Inc()
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithTokenHandler attaches the request-scoped token handler to the context
func WithTokenHandler(ctx context.Context, h *csrf.Handler) context.Context {
	return context.WithValue(ctx, tokenHandlerKey, h)
}

// TokenHandler returns the request-scoped token handler, if present
func TokenHandler(ctx context.Context) (*csrf.Handler, bool) {
	h, ok := ctx.Value(tokenHandlerKey).(*csrf.Handler)
	return h, ok
}

const failureReasonKey contextKey = "csrf_failure_reason"

func withFailureReason(ctx context.Context, err *csrf.ValidationError) context.Context {
	return context.WithValue(ctx, failureReasonKey, err)
}

// FailureReason returns the validation error that caused a custom
// FailureHandler to be invoked
func FailureReason(ctx context.Context) (*csrf.ValidationError, bool) {
	err, ok := ctx.Value(failureReasonKey).(*csrf.ValidationError)
	return err, ok
}

// isExemptPath returns true if the request path should skip validation
func isExemptPath(path string, exempt []string) bool {
	for _, prefix := range exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func failureReason(err *csrf.ValidationError) string {
	if errors.Is(err, csrf.ErrTokenMissing) {
		return "missing_token"
	}
	return "invalid_token"
}

// logCSRFFailure logs a security event when validation fails. Useful
// for monitoring and detecting forgery attempts.
func logCSRFFailure(r *http.Request, reason string) {
	observability.FromContext(r.Context()).Warn("csrf validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
