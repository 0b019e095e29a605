package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/prizepool/internal/auth"
	"github.com/congo-pay/prizepool/internal/identity"
)

// RegisterOperatorRoutes wires registration and login.
func RegisterOperatorRoutes(r fiber.Router, ids *identity.Handler, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/operators")
	group.Post("/register", ids.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}
