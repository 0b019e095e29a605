package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/identity"
)

// Handler exposes login and logout.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tok, err := h.svc.Login(c.UserContext(), identity.Credentials{Name: req.Name, Secret: req.Secret})
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(tok)
}

// Logout revokes every token of the calling operator.
func (h *Handler) Logout(c *fiber.Ctx) error {
	p, err := access.Caller(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	if err := h.svc.Logout(c.UserContext(), p.ID); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
