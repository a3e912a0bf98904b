// Package middleware holds the global and route-specific Echo middleware:
// authentication (Clerk), request ids, the request-scoped logger, New Relic
// tracing, rate limiting and the global error handler.
package middleware
