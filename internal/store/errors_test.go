package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	other := errors.New("connection reset")

	testCases := []struct {
		name    string
		err     error
		want    error
		outcome string
	}{
		{name: "nil", err: nil, want: nil, outcome: "ok"},
		{name: "gorm not found", err: gorm.ErrRecordNotFound, want: ErrNotFound, outcome: "not_found"},
		{name: "translated duplicate", err: gorm.ErrDuplicatedKey, want: ErrConstraintViolation, outcome: "constraint"},
		{name: "translated foreign key", err: fmt.Errorf("insert: %w", gorm.ErrForeignKeyViolated), want: ErrConstraintViolation, outcome: "constraint"},
		{name: "postgres unique", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_tenants_slug"}, want: ErrConstraintViolation, outcome: "constraint"},
		{name: "postgres foreign key", err: &pgconn.PgError{Code: "23503"}, want: ErrConstraintViolation, outcome: "constraint"},
		{name: "postgres other", err: &pgconn.PgError{Code: "40001"}, want: nil, outcome: "error"},
		{name: "sqlite unique", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, want: ErrConstraintViolation, outcome: "constraint"},
		{name: "sqlite foreign key", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, want: ErrConstraintViolation, outcome: "constraint"},
		{name: "sqlite not null", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, want: nil, outcome: "error"},
		{name: "validation kept", err: invalid("bad"), want: ErrValidation, outcome: "validation"},
		{name: "aborted kept", err: fmt.Errorf("%w: %w", ErrTransactionAborted, other), want: ErrTransactionAborted, outcome: "aborted"},
		{name: "unknown", err: other, want: other, outcome: "error"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if tc.err == nil {
				assert.NoError(t, got)
			} else {
				assert.ErrorIs(t, got, tc.err)
			}
			if tc.want != nil {
				assert.ErrorIs(t, got, tc.want)
			}
			assert.Equal(t, tc.outcome, outcome(got))
		})
	}
}

func TestClassify_PostgresConstraintName(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "23505", ConstraintName: "idx_machines_tenant_code"})
	assert.ErrorContains(t, err, "idx_machines_tenant_code")
}
