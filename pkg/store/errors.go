package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/asque/asque/pkg/apperrors"
)

// mapError translates driver-level failures into domain errors at the
// store boundary so nothing above this package ever inspects pq codes.
func mapError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &apperrors.NotFoundError{Resource: resource}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return &apperrors.ConflictError{Field: constraintField(pqErr)}
		case "23503": // foreign_key_violation
			return &apperrors.ReferenceError{Field: constraintField(pqErr)}
		}
		switch pqErr.Code.Class() {
		case "22", "42": // data exception, syntax error
			return &apperrors.MalformedError{Err: err}
		}
	}
	return &apperrors.StoreError{Err: err}
}

// constraintField derives a field name from a constraint like
// "users_email_key" or "quotes_client_id_fkey".
func constraintField(pqErr *pq.Error) string {
	name := pqErr.Constraint
	if name == "" {
		return pqErr.Column
	}
	for _, suffix := range []string{"_key", "_fkey", "_pkey"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if pqErr.Table != "" {
		name = strings.TrimPrefix(name, pqErr.Table+"_")
	}
	return name
}
