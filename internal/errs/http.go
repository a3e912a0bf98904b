package errs

import (
	"net/http"
)

func statusCode(status int) string {
	return MakeUpperCaseWithUnderscores(http.StatusText(status))
}

// NewUnauthorizedError creates a 401 Unauthorized HTTPError.
func NewUnauthorizedError(message string, override bool) *HTTPError {
	return &HTTPError{
		Code:     statusCode(http.StatusUnauthorized),
		Message:  message,
		Status:   http.StatusUnauthorized,
		Override: override,
	}
}

// NewForbiddenError creates a 403 Forbidden HTTPError.
func NewForbiddenError(message string, override bool) *HTTPError {
	return &HTTPError{
		Code:     statusCode(http.StatusForbidden),
		Message:  message,
		Status:   http.StatusForbidden,
		Override: override,
	}
}

// NewBadRequestError creates a 400 Bad Request HTTPError.
//
// code overrides the default "BAD_REQUEST" code when non-nil; errors and
// action are optional.
func NewBadRequestError(message string, override bool, code *string, errors []FieldError, action *Action) *HTTPError {
	formattedCode := statusCode(http.StatusBadRequest)
	if code != nil {
		formattedCode = *code
	}

	return &HTTPError{
		Code:     formattedCode,
		Message:  message,
		Status:   http.StatusBadRequest,
		Override: override,
		Errors:   errors,
		Action:   action,
	}
}

// NewNotFoundError creates a 404 Not Found HTTPError.
func NewNotFoundError(message string, override bool, code *string) *HTTPError {
	formattedCode := statusCode(http.StatusNotFound)
	if code != nil {
		formattedCode = *code
	}

	return &HTTPError{
		Code:     formattedCode,
		Message:  message,
		Status:   http.StatusNotFound,
		Override: override,
	}
}

// NewConflictError creates a 409 Conflict HTTPError, used when the same
// idempotency key is already being processed or a resource already exists.
func NewConflictError(message string, override bool, code *string) *HTTPError {
	formattedCode := statusCode(http.StatusConflict)
	if code != nil {
		formattedCode = *code
	}

	return &HTTPError{
		Code:     formattedCode,
		Message:  message,
		Status:   http.StatusConflict,
		Override: override,
	}
}

// NewPaymentRequiredError creates a 402 HTTPError for processor declines.
func NewPaymentRequiredError(message string, code string) *HTTPError {
	return &HTTPError{
		Code:     code,
		Message:  message,
		Status:   http.StatusPaymentRequired,
		Override: true,
		Action: &Action{
			Type:    ActionTypeUpdatePaymentMethod,
			Message: "Update your payment method and try again",
		},
	}
}

// NewUnprocessableError creates a 422 HTTPError for requests that are well
// formed but cannot be applied to the current state (inactive lease, missing
// payout account, ...).
func NewUnprocessableError(message string, code string) *HTTPError {
	return &HTTPError{
		Code:     code,
		Message:  message,
		Status:   http.StatusUnprocessableEntity,
		Override: true,
	}
}

// NewTooManyRequestsError creates a 429 HTTPError.
func NewTooManyRequestsError(message string) *HTTPError {
	return &HTTPError{
		Code:     statusCode(http.StatusTooManyRequests),
		Message:  message,
		Status:   http.StatusTooManyRequests,
		Override: true,
		Action: &Action{
			Type:    ActionTypeRetry,
			Message: "Wait a moment before retrying",
		},
	}
}

// NewServiceUnavailableError creates a 503 HTTPError for upstream outages.
func NewServiceUnavailableError(message string) *HTTPError {
	return &HTTPError{
		Code:     statusCode(http.StatusServiceUnavailable),
		Message:  message,
		Status:   http.StatusServiceUnavailable,
		Override: true,
		Action: &Action{
			Type:    ActionTypeRetry,
			Message: "Retry with the same Idempotency-Key",
		},
	}
}

// NewInternalServerError creates a generic 500 HTTPError. The message is the
// status text, never the internal error.
func NewInternalServerError() *HTTPError {
	return &HTTPError{
		Code:     statusCode(http.StatusInternalServerError),
		Message:  http.StatusText(http.StatusInternalServerError),
		Status:   http.StatusInternalServerError,
		Override: false,
	}
}

// ValidationError converts a generic validation error into a 400 HTTPError.
func ValidationError(err error) *HTTPError {
	return NewBadRequestError("Validation failed: "+err.Error(), false, nil, nil, nil)
}
