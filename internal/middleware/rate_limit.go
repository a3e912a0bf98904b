package middleware

import (
	"net/http"
	"time"

	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	// IdempotencyKeyHeader carries the caller's key on payment mutations.
	IdempotencyKeyHeader = "Idempotency-Key"

	// IdempotencyReplayedHeader is set to "true" on replayed responses.
	IdempotencyReplayedHeader = "Idempotent-Replayed"
)

// Payment mutations are limited per user: a sustained 10 per minute with
// bursts of 5.
const (
	paymentRatePerMinute = 10
	paymentBurst         = 5
	limiterExpiry        = 10 * time.Minute
)

// RateLimitMiddleware throttles payment mutations and reports every
// rejection to New Relic as a RateLimitHit event.
type RateLimitMiddleware struct {
	server *server.Server
	limit  rate.Limit
	burst  int
}

func NewRateLimitMiddleware(s *server.Server) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		server: s,
		limit:  rate.Every(time.Minute / paymentRatePerMinute),
		burst:  paymentBurst,
	}
}

// PaymentMutations limits requests per authenticated user, falling back to
// the client IP. It must run after RequireAuth to see the user.
func (r *RateLimitMiddleware) PaymentMutations() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      r.limit,
		Burst:     r.burst,
		ExpiresIn: limiterExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if userID := GetUserID(c); userID != "" {
				return "user:" + userID, nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return errs.NewForbiddenError("Could not identify the client", false)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			r.RecordRateLimitHit(c.Path())

			GetLogger(c).Warn().
				Str("identifier", identifier).
				Msg("rate limit exceeded")

			c.Response().Header().Set("Retry-After", "60")
			return errs.NewTooManyRequestsError("Too many payment requests, try again shortly")
		},
	})
}

// RecordRateLimitHit records a RateLimitHit custom event when New Relic is
// enabled.
func (r *RateLimitMiddleware) RecordRateLimitHit(endpoint string) {
	if r.server.LoggerService != nil && r.server.LoggerService.GetApplication() != nil {
		r.server.LoggerService.GetApplication().RecordCustomEvent("RateLimitHit", map[string]interface{}{
			"endpoint": endpoint,
			"status":   http.StatusTooManyRequests,
		})
	}
}
