package sqlerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name: "unique violation on idempotency key",
			err: &pgconn.PgError{
				Code:           "23505",
				Severity:       "ERROR",
				TableName:      "rent_payments",
				ConstraintName: "rent_payments_idempotency_attempt_uniq",
			},
			wantStatus: http.StatusConflict,
			wantCode:   "RENT_PAYMENT_ALREADY_EXISTS",
			wantMsg:    "A Rent Payment with this identifier already exists",
		},
		{
			name: "unique violation with inferable column",
			err: &pgconn.PgError{
				Code:           "23505",
				TableName:      "users",
				ConstraintName: "users_email_key",
			},
			wantStatus: http.StatusConflict,
			wantCode:   "USER_ALREADY_EXISTS",
			wantMsg:    "A User with this Email already exists",
		},
		{
			name: "foreign key violation",
			err: &pgconn.PgError{
				Code:       "23503",
				TableName:  "rent_payments",
				ColumnName: "lease_id",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "RENT_PAYMENT_NOT_FOUND",
			wantMsg:    "The referenced Lease does not exist",
		},
		{
			name: "check violation",
			err: &pgconn.PgError{
				Code:       "23514",
				TableName:  "leases",
				ColumnName: "due_day",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "LEASE_INVALID",
			wantMsg:    "The Due Day value does not meet required conditions",
		},
		{
			name:       "no rows with table hint",
			err:        fmt.Errorf("table:leases: %w", pgx.ErrNoRows),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
			wantMsg:    "Lease not found",
		},
		{
			name:       "unknown error",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
			wantMsg:    "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var httpErr *errs.HTTPError
			require.True(t, errors.As(HandleError(tt.err), &httpErr))
			assert.Equal(t, tt.wantStatus, httpErr.Status)
			assert.Equal(t, tt.wantCode, httpErr.Code)
			assert.Equal(t, tt.wantMsg, httpErr.Message)
		})
	}
}

func TestHandleErrorPassesHTTPErrorsThrough(t *testing.T) {
	original := errs.NewForbiddenError("not your lease", true)
	assert.Same(t, original, HandleError(original))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestMapSeverity(t *testing.T) {
	assert.Equal(t, SeverityFatal, MapSeverity("FATAL"))
	assert.Equal(t, SeverityError, MapSeverity("weird"))
}
