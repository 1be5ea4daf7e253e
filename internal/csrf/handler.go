// Package csrf implements anti-forgery token issuance and validation
// using the masked synchronizer token pattern: one secret token per
// session lifetime, a freshly keyed XOR mask on every emission so no
// two responses contain identical token bytes (BREACH mitigation), and
// constant-time validation of inbound tokens.
//
// The Handler owns the token lifecycle; where the secret is persisted
// (TokenStorage) and where inbound candidates are read from
// (TokenSource) are pluggable request-scoped collaborators.
package csrf

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultTokenLength is the secret token size in bytes (256 bits).
const DefaultTokenLength = 32

var (
	// ErrTokenMissing indicates no source produced a candidate token
	// for a request whose method requires validation.
	ErrTokenMissing = errors.New("no csrf token in request")

	// ErrTokenInvalid indicates the candidate token was malformed or
	// did not match the session secret.
	ErrTokenInvalid = errors.New("csrf token invalid")
)

// ValidationError is the single caller-visible failure from
// ValidateRequest. The wrapped reason is one of the sentinel errors
// above; it unwraps so callers can errors.Is against them.
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return "csrf validation failed: " + e.Reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// DefaultValidatedMethods returns the state-changing methods that
// require a valid token. All other methods pass validation untouched
// (but still trigger secret establishment).
func DefaultValidatedMethods() []string {
	return []string{http.MethodPost, http.MethodPut, http.MethodDelete}
}

// Options tunes a Handler. The zero value selects the defaults.
type Options struct {
	// TokenLength is the secret size in bytes. Defaults to
	// DefaultTokenLength.
	TokenLength int

	// ValidatedMethods lists the HTTP methods subject to token
	// validation. Defaults to DefaultValidatedMethods().
	ValidatedMethods []string

	// Rand is the entropy source for secrets and mask keys. Defaults
	// to crypto/rand.Reader. Overridable for deterministic tests.
	Rand io.Reader

	// OnNewSecret, when set, is invoked each time a fresh secret is
	// generated and stored. Used for instrumentation.
	OnNewSecret func()
}

// Handler performs token issuance and validation for a single request.
// Instances are request-scoped and must not be shared across requests;
// the secret itself is externalized to the TokenStorage.
type Handler struct {
	tokenLength int
	storage     TokenStorage
	sources     []TokenSource
	entropy     io.Reader
	validated   map[string]bool
	onNewSecret func()

	// secret is memoized after the first load so one request always
	// validates against a single value.
	secret []byte
}

// NewHandler builds a request-scoped handler. Sources are consulted in
// the given order; the first non-empty candidate wins.
func NewHandler(storage TokenStorage, sources []TokenSource, opts *Options) *Handler {
	if opts == nil {
		opts = &Options{}
	}

	length := opts.TokenLength
	if length <= 0 {
		length = DefaultTokenLength
	}

	entropy := opts.Rand
	if entropy == nil {
		entropy = rand.Reader
	}

	methods := opts.ValidatedMethods
	if methods == nil {
		methods = DefaultValidatedMethods()
	}
	validated := make(map[string]bool, len(methods))
	for _, m := range methods {
		validated[m] = true
	}

	return &Handler{
		tokenLength: length,
		storage:     storage,
		sources:     sources,
		entropy:     entropy,
		validated:   validated,
		onNewSecret: opts.OnNewSecret,
	}
}

// TrueToken returns the session's secret token, creating and storing a
// fresh one if the storage holds nothing or a wrong-length value. The
// result is memoized for the remainder of the request.
func (h *Handler) TrueToken() ([]byte, error) {
	if h.secret != nil {
		return h.secret, nil
	}

	if stored := h.storage.GetStoredToken(); len(stored) == h.tokenLength {
		h.secret = stored
		return h.secret, nil
	}

	return h.generateAndStore()
}

// Token mints a freshly masked, base64-encoded representation of the
// secret. Every call consumes a new mask key and yields distinct
// output, so repeated tokens never appear in compressible responses.
func (h *Handler) Token() (string, error) {
	secret, err := h.TrueToken()
	if err != nil {
		return "", err
	}

	key, err := h.randomBytes(h.tokenLength)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(maskToken(secret, key)), nil
}

// ValidateToken checks a request-supplied candidate against the
// secret. It fails closed on undecodable input or a decoded length
// other than twice the token length, and otherwise compares the
// unmasked candidate to the secret in constant time.
func (h *Handler) ValidateToken(candidate string) bool {
	secret, err := h.TrueToken()
	if err != nil {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(candidate)
	if err != nil {
		return false
	}
	if len(decoded) != 2*h.tokenLength {
		return false
	}

	return tokensEqual(unmaskToken(decoded, h.tokenLength), secret)
}

// Regenerate discards the current secret and immediately stores a
// fresh one. Every previously emitted masked token becomes invalid;
// call this after privilege elevation such as login.
func (h *Handler) Regenerate() error {
	h.secret = nil
	_, err := h.generateAndStore()
	return err
}

// ValidateRequest establishes the secret (so the storage side effect
// happens even for safe methods), then validates the request token if
// the method is in the validated set. A nil return means the request
// may proceed; a *ValidationError means the caller must reject it.
func (h *Handler) ValidateRequest(r *http.Request) error {
	if _, err := h.TrueToken(); err != nil {
		return err
	}

	if !h.validated[r.Method] {
		return nil
	}

	var candidate string
	for _, source := range h.sources {
		if token := source.GetRequestToken(); token != "" {
			candidate = token
			break
		}
	}

	if candidate == "" {
		return &ValidationError{Reason: ErrTokenMissing}
	}
	if !h.ValidateToken(candidate) {
		return &ValidationError{Reason: ErrTokenInvalid}
	}
	return nil
}

// ValidatesMethod reports whether requests with the given method are
// subject to token validation.
func (h *Handler) ValidatesMethod(method string) bool {
	return h.validated[method]
}

func (h *Handler) generateAndStore() ([]byte, error) {
	secret, err := h.randomBytes(h.tokenLength)
	if err != nil {
		return nil, err
	}
	if err := h.storage.StoreToken(secret); err != nil {
		return nil, fmt.Errorf("failed to store csrf secret: %w", err)
	}
	h.secret = secret
	if h.onNewSecret != nil {
		h.onNewSecret()
	}
	return secret, nil
}

func (h *Handler) randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.entropy, buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}
