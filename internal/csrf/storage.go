package csrf

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"formguard/internal/domain"
)

// ErrNoSession indicates the session-backed storage was asked to
// persist a secret without an authenticated session to attach it to.
var ErrNoSession = errors.New("no session to store csrf secret on")

// DefaultCookieName is the cookie used by CookieStorage when the base
// cookie leaves the name empty.
const DefaultCookieName = "csrf_secret"

// TokenStorage persists the secret token across requests within one
// client session lifetime. A missing or corrupted entry reads as nil,
// never as an error; only writes can fail.
type TokenStorage interface {
	GetStoredToken() []byte
	StoreToken(token []byte) error
}

// CookieStorage keeps the secret in a client-side persistent cookie.
// It is request-scoped: reads come from the inbound request, writes go
// to the outbound response. Cookie attributes (path, max-age, Secure,
// SameSite) are configuration carried by the base cookie.
type CookieStorage struct {
	w    http.ResponseWriter
	r    *http.Request
	base http.Cookie
}

// NewCookieStorage builds a cookie-backed storage for one request. The
// base cookie acts as a template; its Value is ignored.
func NewCookieStorage(w http.ResponseWriter, r *http.Request, base http.Cookie) *CookieStorage {
	if base.Name == "" {
		base.Name = DefaultCookieName
	}
	return &CookieStorage{w: w, r: r, base: base}
}

func (s *CookieStorage) GetStoredToken() []byte {
	cookie, err := s.r.Cookie(s.base.Name)
	if err != nil {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	return raw
}

func (s *CookieStorage) StoreToken(token []byte) error {
	cookie := s.base
	cookie.Value = base64.StdEncoding.EncodeToString(token)
	http.SetCookie(s.w, &cookie)
	return nil
}

// SessionStorage keeps the secret server-side on the authenticated
// session row. An unauthenticated request, or a session whose stored
// value does not decode, reads as absent.
type SessionStorage struct {
	ctx     context.Context
	repo    domain.SessionRepository
	session *domain.Session
}

// NewSessionStorage builds a session-backed storage for one request.
// session may be nil when the request is unauthenticated.
func NewSessionStorage(ctx context.Context, repo domain.SessionRepository, session *domain.Session) *SessionStorage {
	return &SessionStorage{ctx: ctx, repo: repo, session: session}
}

func (s *SessionStorage) GetStoredToken() []byte {
	if s.session == nil || s.session.CSRFSecret == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(s.session.CSRFSecret)
	if err != nil {
		return nil
	}
	return raw
}

func (s *SessionStorage) StoreToken(token []byte) error {
	if s.session == nil {
		return ErrNoSession
	}

	encoded := base64.StdEncoding.EncodeToString(token)
	if err := s.repo.UpdateCSRFSecret(s.ctx, encoded, s.session.Token); err != nil {
		return fmt.Errorf("failed to persist csrf secret: %w", err)
	}
	s.session.CSRFSecret = encoded
	return nil
}
