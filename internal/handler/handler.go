// Package handler is the HTTP layer. It binds and validates requests
// through the validation package, calls the service layer and writes the
// responses.
package handler
