package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const uniqueViolationCode pq.ErrorCode = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation. An empty constraint matches any unique
// violation; otherwise only the named constraint matches.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolationCode {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
