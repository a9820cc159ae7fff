package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsExclusionViolationMatchesOnlySQLSTATE23P01(t *testing.T) {
	excl := &pgconn.PgError{Code: "23P01", ConstraintName: "showing_appointments_no_overlap"}
	if !IsExclusionViolation(excl) {
		t.Error("expected 23P01 to be recognized as an exclusion violation")
	}
	if !IsExclusionViolation(fmt.Errorf("wrapped: %w", excl)) {
		t.Error("expected a wrapped exclusion violation to still be recognized")
	}

	unique := &pgconn.PgError{Code: "23505"}
	if IsExclusionViolation(unique) {
		t.Error("a unique violation must not be mistaken for an exclusion violation")
	}
	if IsExclusionViolation(errors.New("some other error")) {
		t.Error("a non-pg error must never be treated as an exclusion violation")
	}
}

func TestIsUniqueViolationMatchesOnlySQLSTATE23505(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "messages_conversation_id_external_message_id_key"}
	if !IsUniqueViolation(unique) {
		t.Error("expected 23505 to be recognized as a unique violation")
	}

	excl := &pgconn.PgError{Code: "23P01"}
	if IsUniqueViolation(excl) {
		t.Error("an exclusion violation must not be mistaken for a unique violation")
	}
}

func TestIsNoRowsOnlyMatchesPgxErrNoRows(t *testing.T) {
	if !isNoRows(pgx.ErrNoRows) {
		t.Error("expected pgx.ErrNoRows to be recognized")
	}
	if !isNoRows(fmt.Errorf("scanning: %w", pgx.ErrNoRows)) {
		t.Error("expected a wrapped pgx.ErrNoRows to still be recognized")
	}
	if isNoRows(errors.New("connection reset")) {
		t.Error("an unrelated error must not be treated as no-rows")
	}
}
