package persistence

import (
	"database/sql"
	"errors"

	"support_server/pkg/apperr"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// wrapError maps driver errors onto application errors. Missing rows
// become NotFound, unique violations become AlreadyExists, everything
// else is a retryable database error.
func wrapError(resource, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(resource)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperr.AlreadyExists(resource)
	}
	return apperr.DatabaseError(operation, err)
}
