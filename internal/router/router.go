// Package router builds the Echo instance: global middlewares, system
// routes and the authenticated /api/v1 group.
package router

import (
	"net/http"

	"github.com/deppfellow/tenantflow/internal/handler"
	"github.com/deppfellow/tenantflow/internal/middleware"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/labstack/echo/v4"
)

func NewRouter(s *server.Server, h *handler.Handlers) *echo.Echo {
	middlewares := middleware.NewMiddlewares(s)

	router := echo.New()
	router.HideBanner = true
	router.HTTPErrorHandler = middlewares.Global.GlobalErrorHandler

	router.Use(
		middleware.RequestID(),
		middlewares.Tracing.NewRelicMiddleware(),
		middlewares.Tracing.EnhanceTracing(),
		middlewares.ContextEnhancer.EnhanceContext(),
		middlewares.Global.RequestLogger(),
		middlewares.Global.Recover(),
		middlewares.Global.Secure(),
		middlewares.Global.CORS(),
	)

	registerSystemRoutes(router, h)

	// EnhanceContext runs again after auth so the logger carries user_id.
	v1 := router.Group("/api/v1", middlewares.Auth.RequireAuth, middlewares.ContextEnhancer.EnhanceContext())
	registerPaymentRoutes(v1, h.Payment, middlewares.RateLimit)

	return router
}

func registerPaymentRoutes(g *echo.Group, p *handler.PaymentHandler, limits *middleware.RateLimitMiddleware) {
	mutations := limits.PaymentMutations()

	g.POST("/fees/quote", handler.Handle(p.Handler, p.QuoteFees, http.StatusOK, &handler.QuoteFeesRequest{}))

	leases := g.Group("/leases/:leaseId")
	leases.GET("/payments", handler.Handle(p.Handler, p.ListPayments, http.StatusOK, &handler.LeaseRequest{}))
	leases.GET("/payments/status", handler.Handle(p.Handler, p.GetStatus, http.StatusOK, &handler.LeaseRequest{}))
	leases.GET("/payments/summary", handler.Handle(p.Handler, p.GetSummary, http.StatusOK, &handler.LeaseRequest{}))
	leases.GET("/payments/export", handler.HandleFile(p.Handler, p.ExportCSV, http.StatusOK, &handler.LeaseRequest{}))

	leases.POST("/payments", handler.Handle(p.Handler, p.CreatePayment, http.StatusCreated, &handler.CreatePaymentRequest{}), mutations)
	leases.POST("/subscription", handler.Handle(p.Handler, p.CreateSubscription, http.StatusCreated, &handler.CreateSubscriptionRequest{}), mutations)
	leases.DELETE("/subscription", handler.Handle(p.Handler, p.CancelSubscription, http.StatusOK, &handler.LeaseRequest{}), mutations)

	g.POST("/payments/:paymentId/reconcile", handler.Handle(p.Handler, p.ReconcilePayment, http.StatusOK, &handler.PaymentRequest{}), mutations)
}
