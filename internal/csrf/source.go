package csrf

import "net/http"

const (
	// DefaultFormField is the form field checked by FormSource.
	DefaultFormField = "csrf_token"

	// DefaultHeaderName is the header checked by HeaderSource.
	DefaultHeaderName = "X-CSRF-Token"
)

// TokenSource extracts a candidate masked token from an inbound
// request. Absence is the empty string; the raw value is returned
// untouched since all decoding belongs to the Handler.
type TokenSource interface {
	GetRequestToken() string
}

// FormSource reads the token from a named field in submitted form data
// (traditional HTML form posts).
type FormSource struct {
	r     *http.Request
	field string
}

func NewFormSource(r *http.Request, field string) *FormSource {
	if field == "" {
		field = DefaultFormField
	}
	return &FormSource{r: r, field: field}
}

func (s *FormSource) GetRequestToken() string {
	return s.r.PostFormValue(s.field)
}

// HeaderSource reads the token from a named HTTP header (AJAX and API
// clients).
type HeaderSource struct {
	r    *http.Request
	name string
}

func NewHeaderSource(r *http.Request, name string) *HeaderSource {
	if name == "" {
		name = DefaultHeaderName
	}
	return &HeaderSource{r: r, name: name}
}

func (s *HeaderSource) GetRequestToken() string {
	return s.r.Header.Get(s.name)
}
