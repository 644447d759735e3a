package users

import (
	"errors"
	"strings"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const (
	FieldUsername   = "username"
	FieldEmail      = "email"
	FieldProviderID = "oauth_provider_id"
)

// DuplicateError reports which unique column rejected a write.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return "duplicate " + e.Field
}

func (e *DuplicateError) Unwrap() error {
	return common.ErrorConflict
}

// DuplicateField returns the offending column of a unique violation, or "".
func DuplicateField(err error) string {
	var d *DuplicateError
	if errors.As(err, &d) {
		return d.Field
	}
	return ""
}

func asDuplicate(err error) (*DuplicateError, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil, false
	}

	c := pgErr.ConstraintName
	switch {
	case strings.Contains(c, "username"):
		return &DuplicateError{Field: FieldUsername}, true
	case strings.Contains(c, "email"):
		return &DuplicateError{Field: FieldEmail}, true
	case strings.Contains(c, "provider"):
		return &DuplicateError{Field: FieldProviderID}, true
	default:
		return &DuplicateError{Field: c}, true
	}
}
