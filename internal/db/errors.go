package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isExclusionViolation reports whether err is a Postgres exclusion
// constraint violation (SQLSTATE 23P01), the signal a showing or
// availability-slot overlap insert failed on.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23P01"
	}
	return false
}

// IsExclusionViolation is the exported form used by callers outside this package.
func IsExclusionViolation(err error) bool {
	return isExclusionViolation(err)
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsUniqueViolation is the exported form used by callers outside this package.
func IsUniqueViolation(err error) bool {
	return isUniqueViolation(err)
}
