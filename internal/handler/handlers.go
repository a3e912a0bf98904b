package handler

import (
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/deppfellow/tenantflow/internal/service"
)

// Handlers groups every HTTP handler so router setup receives one value.
type Handlers struct {
	Health  *HealthHandler
	OpenAPI *OpenAPIHandler
	Payment *PaymentHandler
}

func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(s),
		OpenAPI: NewOpenAPIHandler(s),
		Payment: NewPaymentHandler(s, services),
	}
}
