// Package errs defines the error shapes returned to API clients.
//
// Every failure that reaches the HTTP layer is converted into an HTTPError
// so clients receive consistent, actionable JSON: a machine code, a message,
// optional field errors and an optional action hint.
package errs
