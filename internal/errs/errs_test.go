package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeUpperCaseWithUnderscores(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST", MakeUpperCaseWithUnderscores("Bad Request"))
	assert.Equal(t, "PAYMENT_REQUIRED", MakeUpperCaseWithUnderscores(http.StatusText(http.StatusPaymentRequired)))
}

func TestHTTPErrorIs(t *testing.T) {
	wrapped := fmt.Errorf("charging lease: %w", NewConflictError("busy", true, nil))

	assert.True(t, errors.Is(wrapped, &HTTPError{}))

	var httpErr *HTTPError
	require.True(t, errors.As(wrapped, &httpErr))
	assert.Equal(t, http.StatusConflict, httpErr.Status)
	assert.Equal(t, "CONFLICT", httpErr.Code)
}

func TestConstructors(t *testing.T) {
	code := "LEASE_NOT_FOUND"

	tests := []struct {
		name   string
		err    *HTTPError
		status int
		code   string
	}{
		{"unauthorized", NewUnauthorizedError("no", false), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", NewForbiddenError("no", false), http.StatusForbidden, "FORBIDDEN"},
		{"bad request", NewBadRequestError("bad", false, nil, nil, nil), http.StatusBadRequest, "BAD_REQUEST"},
		{"not found custom code", NewNotFoundError("missing", true, &code), http.StatusNotFound, code},
		{"payment required", NewPaymentRequiredError("declined", "CARD_DECLINED"), http.StatusPaymentRequired, "CARD_DECLINED"},
		{"unprocessable", NewUnprocessableError("inactive", "LEASE_INACTIVE"), http.StatusUnprocessableEntity, "LEASE_INACTIVE"},
		{"too many", NewTooManyRequestsError("slow down"), http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
		{"unavailable", NewServiceUnavailableError("later"), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"internal", NewInternalServerError(), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestWithActionDoesNotMutate(t *testing.T) {
	base := NewBadRequestError("bad", false, nil, nil, nil)
	withAction := base.WithAction(&Action{Type: ActionTypeRetry})

	assert.Nil(t, base.Action)
	require.NotNil(t, withAction.Action)
	assert.Equal(t, ActionTypeRetry, withAction.Action.Type)
	assert.Equal(t, base.Message, withAction.Message)
}
