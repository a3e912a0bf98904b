// Package validation binds request data and validates it with
// go-playground/validator, turning failures into field-level errors the
// client can act on.
package validation
