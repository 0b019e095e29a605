package ledger

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// Handler exposes token balances and the owner's treasury: minting
// underlying, drip and external prize tokens to accounts.
type Handler struct {
	ledger   Ledger
	nfts     *NFTRegistry
	treasury string
	// locked tokens are never registered or re-registered through the
	// treasury, so it cannot take control of pool tokens.
	locked map[string]struct{}
}

func NewHandler(l Ledger, nfts *NFTRegistry, treasury string, locked ...string) *Handler {
	m := make(map[string]struct{}, len(locked))
	for _, t := range locked {
		m[t] = struct{}{}
	}
	return &Handler{ledger: l, nfts: nfts, treasury: treasury, locked: m}
}

func ledgerError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, fixedpoint.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownToken):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotController):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientAllowance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// Balance returns the balance of holder in token.
func (h *Handler) Balance(c *fiber.Ctx) error {
	bal, err := h.ledger.BalanceOf(c.UserContext(), c.Params("token"), c.Params("holder"))
	if err != nil {
		return ledgerError(err)
	}
	return c.JSON(fiber.Map{"token": c.Params("token"), "holder": c.Params("holder"), "balance": fixedpoint.FormatUnits(bal)})
}

type mintRequest struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Mint credits an account from the treasury. Tokens the treasury has never
// seen are registered under its control first.
func (h *Handler) Mint(c *fiber.Ctx) error {
	var req mintRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req.Token, req.To = strings.TrimSpace(req.Token), strings.TrimSpace(req.To)
	if req.Token == "" || req.To == "" {
		return fiber.NewError(http.StatusBadRequest, "token and to are required")
	}
	amount, err := fixedpoint.ParseUnits(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount: "+err.Error())
	}
	ctx := c.UserContext()
	err = h.ledger.ControllerMint(ctx, req.Token, h.treasury, req.To, amount)
	if errors.Is(err, ErrUnknownToken) {
		if _, locked := h.locked[req.Token]; locked {
			return ledgerError(err)
		}
		if err = h.ledger.RegisterToken(ctx, Token{ID: req.Token, Controllers: []string{h.treasury}}); err == nil {
			err = h.ledger.ControllerMint(ctx, req.Token, h.treasury, req.To, amount)
		}
	}
	if err != nil {
		return ledgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"token": req.Token, "to": req.To, "amount": fixedpoint.FormatUnits(amount)})
}

type mintNFTRequest struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	To         string `json:"to"`
}

// MintNFT assigns a new token id in collection.
func (h *Handler) MintNFT(c *fiber.Ctx) error {
	var req mintNFTRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Collection == "" || req.ID == "" || req.To == "" {
		return fiber.NewError(http.StatusBadRequest, "collection, id and to are required")
	}
	if err := h.nfts.Mint(req.Collection, req.ID, req.To); err != nil {
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"collection": req.Collection, "id": req.ID, "owner": req.To})
}
