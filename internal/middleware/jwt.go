package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/auth"
)

// JWTAuth verifies bearer tokens and attaches the operator's principal to
// the user context.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		op, err := svc.Verify(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if errors.Is(err, auth.ErrInvalidToken) {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		p := op.Principal()
		c.Locals("principal", p.ID)
		c.SetUserContext(access.WithPrincipal(c.UserContext(), p))
		return c.Next()
	}
}

// RequireRole rejects callers whose principal lacks one of roles.
func RequireRole(roles ...access.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := access.Caller(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		for _, r := range roles {
			if p.Role == r {
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusForbidden, "role "+string(p.Role)+" may not call this route")
	}
}
