package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"formguard/internal/middleware"
	"formguard/internal/observability"
)

// TokenResponse carries a freshly masked anti-forgery token for the
// client to embed in forms or attach as a header.
type TokenResponse struct {
	Token      string `json:"token"`
	HeaderName string `json:"header_name"`
	FormField  string `json:"form_field"`
}

// TokenHandler serves masked anti-forgery tokens
type TokenHandler struct {
	headerName string
	formField  string
}

func NewTokenHandler(headerName, formField string) *TokenHandler {
	return &TokenHandler{headerName: headerName, formField: formField}
}

// Mint returns a freshly masked token. Every call yields different
// bytes for the same underlying secret, so pages may request as many
// tokens as they render forms.
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	tokens, ok := middleware.TokenHandler(r.Context())
	if !ok {
		slog.Error("token handler missing from request context", slog.String("path", r.URL.Path))
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}

	token, err := tokens.Token()
	if err != nil {
		slog.Error("failed to mint csrf token", slog.String("error", err.Error()))
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}

	observability.CSRFTokensIssued.Inc()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(TokenResponse{
		Token:      token,
		HeaderName: h.headerName,
		FormField:  h.formField,
	})
}
