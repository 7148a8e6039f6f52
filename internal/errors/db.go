package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column from a unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError maps database errors to AppError instances:
//   - sql.ErrNoRows / pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - foreign key violations → NotFound (the referenced job is gone)
//   - check and NOT NULL violations → Validation
//   - connection exceptions → Unavailable
//   - context timeouts/cancellations → Timeout/Canceled
//
// Anything else is returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database operation canceled", Cause: err}
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "a record with this value already exists",
			Field:   uniqueField(pgErr),
			Cause:   pgErr,
		}
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return &AppError{
			Code:    ErrCodeNotFound,
			Message: "referenced " + tableNoun(pgErr.TableName, pgErr.ConstraintName) + " does not exist",
			Cause:   pgErr,
		}
	case pgErr.Code == pgerrcode.CheckViolation, pgErr.Code == pgerrcode.NotNullViolation:
		field := pgErr.ColumnName
		if field == "" {
			field = inferFieldFromConstraint(pgErr.ConstraintName)
		}
		return &AppError{Code: ErrCodeValidation, Message: "invalid value", Field: field, Cause: pgErr}
	case pgerrcode.IsConnectionException(pgErr.Code):
		return &AppError{Code: ErrCodeUnavailable, Message: "database unavailable", Cause: pgErr}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
	}
}

func uniqueField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return inferFieldFromConstraint(pgErr.ConstraintName)
}

// inferFieldFromConstraint infers a column from a conventional constraint name,
// e.g. "jobs_status_check" → "status", "jobs_max_retries_check" → "max_retries".
func inferFieldFromConstraint(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range []string{"_check", "_key", "_fkey", "_not_null"} {
		if trimmed, ok := strings.CutSuffix(name, suffix); ok {
			name = trimmed
			break
		}
	}
	_, field, ok := strings.Cut(name, "_")
	if !ok {
		return ""
	}
	return field
}

func tableNoun(table, constraint string) string {
	switch {
	case table == "jobs", strings.Contains(constraint, "job_id"):
		return "job"
	case table != "":
		return strings.ReplaceAll(strings.TrimSuffix(table, "s"), "_", " ")
	default:
		return "record"
	}
}
