package csrf

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormSource(t *testing.T) {
	t.Run("reads_named_field_from_post_body", func(t *testing.T) {
		body := "csrf_token=abc123&name=test"
		r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		source := NewFormSource(r, "csrf_token")
		assert.Equal(t, "abc123", source.GetRequestToken())
	})

	t.Run("absent_field_is_empty_string", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("name=test"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		source := NewFormSource(r, "csrf_token")
		assert.Equal(t, "", source.GetRequestToken())
	})

	t.Run("ignores_query_parameters", func(t *testing.T) {
		// Tokens in URLs leak through logs and referers; only the body counts
		r := httptest.NewRequest(http.MethodPost, "/submit?csrf_token=sneaky", nil)
		source := NewFormSource(r, "csrf_token")
		assert.Equal(t, "", source.GetRequestToken())
	})

	t.Run("empty_field_name_uses_default", func(t *testing.T) {
		body := DefaultFormField + "=tok"
		r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		source := NewFormSource(r, "")
		assert.Equal(t, "tok", source.GetRequestToken())
	})
}

func TestHeaderSource(t *testing.T) {
	t.Run("reads_named_header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/submit", nil)
		r.Header.Set("X-CSRF-Token", "xyz789")

		source := NewHeaderSource(r, "X-CSRF-Token")
		assert.Equal(t, "xyz789", source.GetRequestToken())
	})

	t.Run("absent_header_is_empty_string", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/submit", nil)
		source := NewHeaderSource(r, "X-CSRF-Token")
		assert.Equal(t, "", source.GetRequestToken())
	})

	t.Run("value_returned_untouched", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/submit", nil)
		r.Header.Set("X-CSRF-Token", "  padded==value  ")

		source := NewHeaderSource(r, "X-CSRF-Token")
		assert.Equal(t, "  padded==value  ", source.GetRequestToken())
	})

	t.Run("empty_header_name_uses_default", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/submit", nil)
		r.Header.Set(DefaultHeaderName, "tok")

		source := NewHeaderSource(r, "")
		assert.Equal(t, "tok", source.GetRequestToken())
	})
}
