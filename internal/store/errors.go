package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"facility-calls-backend/internal/query"
)

var (
	// ErrNotFound is returned when a unique lookup, update or delete matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConstraintViolation is returned for unique and foreign key collisions.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrValidation is returned for arguments rejected before reaching the database.
	ErrValidation = query.ErrValidation
	// ErrTransactionAborted is returned when a transaction callback fails, panics or times out.
	ErrTransactionAborted = errors.New("transaction aborted")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify maps driver and gorm errors onto the package sentinels. Errors that already
// carry a sentinel are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConstraintViolation),
		errors.Is(err, ErrValidation), errors.Is(err, ErrTransactionAborted):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			return fmt.Errorf("%w: %s: %w", ErrConstraintViolation, pgErr.ConstraintName, err)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
		}
	}
	return err
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConstraintViolation):
		return "constraint"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTransactionAborted):
		return "aborted"
	}
	return "error"
}
