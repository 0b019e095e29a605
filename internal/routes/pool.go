package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/prizepool/internal/ledger"
	"github.com/congo-pay/prizepool/internal/pool"
)

// RegisterPublicPoolRoutes wires the read-only pool views.
func RegisterPublicPoolRoutes(r fiber.Router, h *pool.Handler) {
	r.Get("/pool", h.Status)
	r.Get("/pool/award", h.Award)
	r.Get("/holders/:id/balances", h.Balances)
	r.Get("/holders/:id/credit", h.Credit)
	r.Get("/holders/:id/exit-fee", h.ExitFee)
}

// RegisterMaintenanceRoutes wires the operations anyone may trigger. The
// limiter is attached per route so it does not leak onto later groups.
func RegisterMaintenanceRoutes(r fiber.Router, h *pool.Handler, limiter fiber.Handler) {
	r.Post("/pool/award/start", limiter, h.StartAward)
	r.Post("/pool/award/complete", limiter, h.CompleteAward)
	r.Post("/timelocks/sweep", limiter, h.Sweep)
}

// RegisterHolderRoutes wires operations a holder performs on its own account.
func RegisterHolderRoutes(r fiber.Router, h *pool.Handler) {
	r.Post("/approvals", h.Approve)
	r.Post("/deposits", h.Deposit)
	r.Post("/withdrawals/instant", h.WithdrawInstantly)
	r.Post("/withdrawals/timelock", h.WithdrawWithTimelock)
	r.Post("/timelocks/deposit", h.TimelockDeposit)
	r.Post("/drips/claim", h.ClaimDrips)
	r.Post("/transfers", h.Transfer)
}

// RegisterAdminRoutes wires owner-only settings, drips, external prizes and
// the treasury.
func RegisterAdminRoutes(r fiber.Router, h *pool.Handler, treasury *ledger.Handler) {
	r.Put("/reserve-rate", h.SetReserveRate)
	r.Post("/reserve/withdraw", h.WithdrawReserve)
	r.Put("/credit-plan", h.SetCreditPlan)
	r.Put("/liquidity-cap", h.SetLiquidityCap)
	r.Post("/drips/balance", h.ActivateBalanceDrip)
	r.Delete("/drips/balance", h.DeactivateBalanceDrip)
	r.Post("/drips/volume", h.VolumeDrip)
	r.Post("/awards/erc20", h.ExternalERC20Award)
	r.Post("/awards/erc721", h.ExternalERC721Award)
	r.Post("/award/cancel", h.CancelAward)
	r.Post("/treasury/mint", treasury.Mint)
	r.Post("/treasury/nfts", treasury.MintNFT)
}
