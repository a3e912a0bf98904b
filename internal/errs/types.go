package errs

import "strings"

// FieldError represents a field-level validation error.
//
//	{ "field": "amount", "error": "must be greater than zero" }
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ActionType describes what the client should do next.
type ActionType string

const (
	// ActionTypeRedirect asks the client to navigate to Value.
	ActionTypeRedirect ActionType = "redirect"

	// ActionTypeRetry asks the client to retry the request, reusing its
	// idempotency key.
	ActionTypeRetry ActionType = "retry"

	// ActionTypeUpdatePaymentMethod asks the client to collect a new payment
	// method before trying again.
	ActionTypeUpdatePaymentMethod ActionType = "update_payment_method"
)

// Action is an optional instruction attached to an error response.
type Action struct {
	Type    ActionType `json:"type"`
	Message string     `json:"message"`
	Value   string     `json:"value"`
}

// HTTPError is the error type serialized in API responses.
//
// Override tells the error handler the message is safe to show to end users
// as-is.
type HTTPError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Override bool   `json:"override"`

	// Errors holds field-level validation errors.
	Errors []FieldError `json:"errors"`

	// Action is an optional client instruction.
	Action *Action `json:"action"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is reports whether target is also an *HTTPError. It does not compare codes.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)
	return ok
}

// WithMessage returns a copy of the error with Message replaced.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	return &HTTPError{
		Code:     e.Code,
		Message:  message,
		Status:   e.Status,
		Override: e.Override,
		Errors:   e.Errors,
		Action:   e.Action,
	}
}

// WithAction returns a copy of the error carrying the given action.
func (e *HTTPError) WithAction(action *Action) *HTTPError {
	cp := e.WithMessage(e.Message)
	cp.Action = action
	return cp
}

// MakeUpperCaseWithUnderscores converts "Bad Request" into "BAD_REQUEST".
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}
