package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/logger"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *server.Server {
	logger := zerolog.Nop()
	return &server.Server{
		Logger: &logger,
		Config: &config.Config{
			Primary: config.Primary{Env: "test"},
			Server:  config.ServerConfig{CORSAllowedOrigins: []string{"http://localhost:3000"}},
		},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errs.HTTPError {
	t.Helper()

	var body errs.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGlobalErrorHandler(t *testing.T) {
	global := NewGlobalMiddlewares(testServer())

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "application errors keep their shape",
			err:        errs.NewPaymentRequiredError("Your card was declined.", "PAYMENT_DECLINED"),
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "PAYMENT_DECLINED",
			wantMsg:    "Your card was declined.",
		},
		{
			name:       "unknown routes",
			err:        echo.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
			wantMsg:    "Route not found",
		},
		{
			name:       "echo errors",
			err:        echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"),
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   "METHOD_NOT_ALLOWED",
			wantMsg:    "method not allowed",
		},
		{
			name:       "internal errors are not leaked",
			err:        errors.New("dial tcp 10.0.0.3:5432: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
			wantMsg:    "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			global.GlobalErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestGlobalErrorHandlerKeepsAction(t *testing.T) {
	global := NewGlobalMiddlewares(testServer())

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	global.GlobalErrorHandler(errs.NewPaymentRequiredError("declined", "PAYMENT_DECLINED"), c)

	body := decodeError(t, rec)
	require.NotNil(t, body.Action)
	assert.Equal(t, errs.ActionTypeUpdatePaymentMethod, body.Action.Type)
	assert.True(t, body.Override)
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, rec.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	})
}

func TestPaymentMutationsRateLimit(t *testing.T) {
	s := testServer()
	limiter := NewRateLimitMiddleware(s)

	e := echo.New()
	e.HTTPErrorHandler = NewGlobalMiddlewares(s).GlobalErrorHandler
	e.POST("/pay", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(UserIDKey, c.Request().Header.Get("X-Test-User"))
			return next(c)
		}
	}, limiter.PaymentMutations())

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/pay", nil)
		req.Header.Set("X-Test-User", user)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < paymentBurst; i++ {
		require.Equal(t, http.StatusCreated, send("user_a"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("user_a"))
	assert.Equal(t, http.StatusCreated, send("user_b"), "limits are per user")
}

func TestContextEnhancerStoresLogger(t *testing.T) {
	e := echo.New()
	e.Use(RequestID(), NewContextEnhancer(testServer()).EnhanceContext())

	var fromEcho, fromCtx *zerolog.Logger
	e.GET("/", func(c echo.Context) error {
		fromEcho = GetLogger(c)
		fromCtx, _ = c.Request().Context().Value(logger.ContextKey).(*zerolog.Logger)
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, fromEcho)
	assert.Same(t, fromEcho, fromCtx)
}
