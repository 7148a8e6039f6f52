package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("claim: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "sql no rows", err: sql.ErrNoRows, wantCode: ErrCodeNotFound},
		{name: "pgx no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name: "unique violation with detail",
			err: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (key)=(job_queue_paused) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "key",
		},
		{
			name: "unique violation column metadata wins",
			err: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				ColumnName: "id",
				Detail:     "Key (other)=(x) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name: "event for missing job",
			err: &pgconn.PgError{
				Code:           pgerrcode.ForeignKeyViolation,
				TableName:      "job_events",
				ConstraintName: "job_events_job_id_fkey",
			},
			wantCode: ErrCodeNotFound,
		},
		{
			name: "check violation infers field",
			err: &pgconn.PgError{
				Code:           pgerrcode.CheckViolation,
				ConstraintName: "jobs_max_retries_check",
			},
			wantCode:  ErrCodeValidation,
			wantField: "max_retries",
		},
		{
			name:      "not null violation",
			err:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "type"},
			wantCode:  ErrCodeValidation,
			wantField: "type",
		},
		{
			name:     "connection failure",
			err:      &pgconn.PgError{Code: pgerrcode.ConnectionFailure},
			wantCode: ErrCodeUnavailable,
		},
		{
			name:     "other pg error",
			err:      &pgconn.PgError{Code: pgerrcode.DivisionByZero},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Fatalf("GetCode() = %q, want %q", got, tt.wantCode)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("GetField() = %q, want %q", got, tt.wantField)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("mapped error lost its cause: %v", err)
			}
		})
	}
}

func TestMapDBError_PassThrough(t *testing.T) {
	orig := errors.New("boom")
	if got := MapDBError(orig); got != orig {
		t.Errorf("MapDBError() = %v, want original error", got)
	}
}

func TestInferFieldFromConstraint(t *testing.T) {
	tests := map[string]string{
		"jobs_status_check":      "status",
		"jobs_max_retries_check": "max_retries",
		"jobs_type_not_null":     "type",
		"jobs":                   "",
		"":                       "",
	}
	for in, want := range tests {
		if got := inferFieldFromConstraint(in); got != want {
			t.Errorf("inferFieldFromConstraint(%q) = %q, want %q", in, got, want)
		}
	}
}
