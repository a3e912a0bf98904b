package service

import (
	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/deppfellow/tenantflow/internal/server"
)

// AuthService configures the Clerk SDK with the server's secret key so the
// auth middleware can verify session tokens.
type AuthService struct {
	server *server.Server
}

func NewAuthService(s *server.Server) *AuthService {
	clerk.SetKey(s.Config.Auth.SecretKey)
	return &AuthService{
		server: s,
	}
}
