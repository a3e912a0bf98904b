package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/labstack/echo/v4"
)

// AuthMiddleware verifies Clerk session tokens.
type AuthMiddleware struct {
	server *server.Server
}

func NewAuthMiddleware(s *server.Server) *AuthMiddleware {
	return &AuthMiddleware{
		server: s,
	}
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// session token and stores the session subject under UserIDKey. The subject
// is the user id every lease and payment authorization check runs against.
func (auth *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return echo.WrapMiddleware(
		clerkhttp.WithHeaderAuthorization(
			clerkhttp.AuthorizationFailureHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)

				response := errs.NewUnauthorizedError("Unauthorized", false)
				if err := json.NewEncoder(w).Encode(response); err != nil {
					auth.server.Logger.Error().
						Err(err).
						Str("function", "RequireAuth").
						Dur("duration", time.Since(start)).
						Msg("failed to write JSON response")
					return
				}

				auth.server.Logger.Warn().
					Str("function", "RequireAuth").
					Str("path", r.URL.Path).
					Dur("duration", time.Since(start)).
					Msg("request rejected: missing or invalid session token")
			}))))(
		func(c echo.Context) error {
			start := time.Now()

			claims, ok := clerk.SessionClaimsFromContext(c.Request().Context())
			if !ok || claims.Subject == "" {
				auth.server.Logger.Error().
					Str("function", "RequireAuth").
					Str("request_id", GetRequestID(c)).
					Dur("duration", time.Since(start)).
					Msg("could not get session claims from context")

				return errs.NewUnauthorizedError("Unauthorized", false)
			}

			c.Set(UserIDKey, claims.Subject)

			auth.server.Logger.Debug().
				Str("function", "RequireAuth").
				Str("user_id", claims.Subject).
				Str("request_id", GetRequestID(c)).
				Dur("duration", time.Since(start)).
				Msg("user authenticated successfully")

			return next(c)
		})
}
