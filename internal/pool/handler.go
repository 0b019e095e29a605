package pool

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/credit"
	"github.com/congo-pay/prizepool/internal/drip"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/prize"
	"github.com/congo-pay/prizepool/internal/timelock"
)

// Handler exposes the pool, its prize scheduler and its drips over HTTP.
// Amounts travel as decimal strings with 18 decimals.
type Handler struct {
	pool      *Pool
	scheduler *prize.Scheduler
	drips     *drip.Engine
}

// NewHandler builds the pool HTTP handler. drips may be nil.
func NewHandler(pool *Pool, scheduler *prize.Scheduler, drips *drip.Engine) *Handler {
	return &Handler{pool: pool, scheduler: scheduler, drips: drips}
}

func decimalOf(v *big.Int) string { return fixedpoint.FormatUnits(v) }

func parseAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fiber.NewError(http.StatusBadRequest, field+" is required")
	}
	v, err := fixedpoint.ParseUnits(raw)
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, field+": "+err.Error())
	}
	return v, nil
}

// httpError maps domain errors to HTTP statuses.
func httpError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, access.ErrUnauthorized):
		if _, ok := access.FromContext(c.UserContext()); !ok {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, fixedpoint.ErrInvalidAmount),
		errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrUnknownToken),
		errors.Is(err, prize.ErrInvalidStrategy),
		errors.Is(err, prize.ErrCannotAwardExternal),
		errors.Is(err, drip.ErrInvalidDrip):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, drip.ErrDripNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, prize.ErrAwardInProgress),
		errors.Is(err, prize.ErrNoAwardInProgress),
		errors.Is(err, prize.ErrRNGNotTimedOut),
		errors.Is(err, ErrReentrant),
		errors.Is(err, drip.ErrDripActive):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientAllowance),
		errors.Is(err, ErrFeeExceedsMaximum),
		errors.Is(err, ErrLiquidityCapExceeded),
		errors.Is(err, ErrAwardExceedsBalance),
		errors.Is(err, timelock.ErrInsufficientTimelock):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, prize.ErrPeriodNotElapsed),
		errors.Is(err, prize.ErrRandomnessNotReady):
		return fiber.NewError(http.StatusTooEarly, err.Error())
	case errors.Is(err, ErrYieldSourceOperationFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// Status returns pool totals, the projected award and the scheduler state.
func (h *Handler) Status(c *fiber.Ctx) error {
	st, err := h.pool.Status(c.UserContext())
	if err != nil {
		return httpError(c, err)
	}
	out := fiber.Map{
		"id":                 st.ID,
		"underlying_token":   st.UnderlyingToken,
		"ticket_token":       st.TicketToken,
		"sponsorship_token":  st.SponsorshipToken,
		"ticket_supply":      decimalOf(st.TicketSupply),
		"sponsorship_supply": decimalOf(st.SponsorshipSupply),
		"timelock_total":     decimalOf(st.TimelockTotal),
		"reserve":            decimalOf(st.Reserve),
		"reserve_rate":       decimalOf(st.ReserveRateMantissa),
		"award_balance":      decimalOf(st.AwardBalance),
		"yield_balance":      decimalOf(st.YieldSourceBalance),
		"ticket_holders":     st.TicketHolders,
		"prize":              h.scheduler.Status(),
	}
	if st.LiquidityCap != nil {
		out["liquidity_cap"] = decimalOf(st.LiquidityCap)
	}
	if h.drips != nil {
		balanceDrips, volumeDrips := h.drips.Drips(st.ID)
		out["balance_drips"] = balanceDrips
		out["volume_drips"] = volumeDrips
	}
	return c.JSON(out)
}

// Award reports the award that would be paid if the period ended now.
func (h *Handler) Award(c *fiber.Ctx) error {
	award, err := h.pool.CaptureAwardBalance(c.UserContext())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{
		"award":              decimalOf(award),
		"remaining_seconds":  h.scheduler.Remaining(),
		"can_start_award":    h.scheduler.CanStartAward(),
		"can_complete_award": h.scheduler.CanCompleteAward(c.UserContext()),
	})
}

// Balances reports a holder's position.
func (h *Handler) Balances(c *fiber.Ctx) error {
	b, err := h.pool.Balances(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(c, err)
	}
	out := fiber.Map{
		"holder":        b.Holder,
		"tickets":       decimalOf(b.Tickets),
		"sponsorship":   decimalOf(b.Sponsorship),
		"underlying":    decimalOf(b.Underlying),
		"timelocked":    decimalOf(b.Timelocked),
		"ticket_credit": decimalOf(b.TicketCredit),
		"draw_stake":    decimalOf(b.DrawStake),
		"draw_total":    decimalOf(b.DrawTotal),
	}
	if b.UnlockAt != 0 {
		out["unlock_at"] = b.UnlockAt
	}
	return c.JSON(out)
}

// Credit reports a holder's accrued credit on ?token= (tickets by default).
func (h *Handler) Credit(c *fiber.Ctx) error {
	token := c.Query("token", h.pool.cfg.TicketToken)
	v, err := h.pool.BalanceOfCredit(c.UserContext(), c.Params("id"), token)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"holder": c.Params("id"), "token": token, "credit": decimalOf(v)})
}

// ExitFee quotes the instant withdrawal fee for ?amount= of ?token=.
func (h *Handler) ExitFee(c *fiber.Ctx) error {
	amount, err := parseAmount("amount", c.Query("amount"))
	if err != nil {
		return err
	}
	token := c.Query("token", h.pool.cfg.TicketToken)
	fee, burned, err := h.pool.CalculateEarlyExitFee(c.UserContext(), c.Params("id"), amount, token)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"holder": c.Params("id"), "token": token, "amount": decimalOf(amount), "exit_fee": decimalOf(fee), "burned_credit": decimalOf(burned)})
}

type approveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Approve sets the caller's allowance; the spender defaults to the pool.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := fixedpoint.ParseUnits(req.Amount)
	if err != nil {
		return httpError(c, err)
	}
	if req.Token == "" {
		req.Token = h.pool.cfg.UnderlyingToken
	}
	if req.Spender == "" {
		req.Spender = h.pool.cfg.ID
	}
	if err := h.pool.Approve(c.UserContext(), req.Token, req.Spender, amount); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"token": req.Token, "spender": req.Spender, "amount": decimalOf(amount)})
}

type depositRequest struct {
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Token    string `json:"token"`
	Referrer string `json:"referrer"`
}

func (h *Handler) holderOrCaller(c *fiber.Ctx, holder string) (string, error) {
	if holder != "" {
		return holder, nil
	}
	p, err := access.Caller(c.UserContext())
	if err != nil {
		return "", httpError(c, err)
	}
	return p.ID, nil
}

func (h *Handler) tokenOrTicket(token string) string {
	if token == "" {
		return h.pool.cfg.TicketToken
	}
	return token
}

// Deposit pulls the caller's underlying into the pool and mints tickets or
// sponsorship to the recipient.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return err
	}
	to, err := h.holderOrCaller(c, req.To)
	if err != nil {
		return err
	}
	token := h.tokenOrTicket(req.Token)
	if err := h.pool.DepositTo(c.UserContext(), to, amount, token, req.Referrer); err != nil {
		return httpError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"to": to, "token": token, "amount": decimalOf(amount)})
}

type withdrawRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
	Token  string `json:"token"`
	MaxFee string `json:"max_fee"`
}

// WithdrawInstantly pays out immediately, charging the exit fee.
func (h *Handler) WithdrawInstantly(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return err
	}
	var maxFee *big.Int
	if req.MaxFee != "" {
		if maxFee, err = parseAmount("max_fee", req.MaxFee); err != nil {
			return err
		}
	}
	from, err := h.holderOrCaller(c, req.From)
	if err != nil {
		return err
	}
	token := h.tokenOrTicket(req.Token)
	fee, err := h.pool.WithdrawInstantlyFrom(c.UserContext(), from, amount, token, maxFee)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{
		"from":     from,
		"token":    token,
		"amount":   decimalOf(amount),
		"exit_fee": decimalOf(fee),
		"redeemed": decimalOf(new(big.Int).Sub(amount, fee)),
	})
}

// WithdrawWithTimelock burns tickets into a timelock.
func (h *Handler) WithdrawWithTimelock(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return err
	}
	from, err := h.holderOrCaller(c, req.From)
	if err != nil {
		return err
	}
	token := h.tokenOrTicket(req.Token)
	unlockAt, err := h.pool.WithdrawWithTimelockFrom(c.UserContext(), from, amount, token)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"from": from, "token": token, "amount": decimalOf(amount), "unlock_at": unlockAt})
}

// TimelockDeposit moves the caller's timelocked funds back into tickets.
func (h *Handler) TimelockDeposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return err
	}
	to, err := h.holderOrCaller(c, req.To)
	if err != nil {
		return err
	}
	token := h.tokenOrTicket(req.Token)
	if err := h.pool.TimelockDepositTo(c.UserContext(), to, amount, token); err != nil {
		return httpError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"to": to, "token": token, "amount": decimalOf(amount)})
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

// Transfer moves the caller's tickets or sponsorship to another holder.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return err
	}
	token := h.tokenOrTicket(req.Token)
	if err := h.pool.TransferTokens(c.UserContext(), req.To, amount, token); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"to": req.To, "token": token, "amount": decimalOf(amount)})
}

type sweepRequest struct {
	Holders []string `json:"holders"`
}

// Sweep pays out matured timelocks. With no holders listed every matured
// timelock is swept.
func (h *Handler) Sweep(c *fiber.Ctx) error {
	var req sweepRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if len(req.Holders) == 0 {
		req.Holders = h.pool.MaturedTimelockHolders()
	}
	swept, err := h.pool.SweepTimelockBalances(c.UserContext(), req.Holders)
	if err != nil {
		return httpError(c, err)
	}
	out := make([]fiber.Map, 0, len(swept))
	for _, s := range swept {
		out = append(out, fiber.Map{"holder": s.Holder, "amount": decimalOf(s.Amount)})
	}
	return c.JSON(fiber.Map{"swept": out})
}

// StartAward ends the prize period and requests randomness.
func (h *Handler) StartAward(c *fiber.Ctx) error {
	req, err := h.scheduler.Start(c.UserContext())
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"request_id": req.ID, "requested_at": req.RequestedAt})
}

// CompleteAward draws winners and pays the award.
func (h *Handler) CompleteAward(c *fiber.Ctx) error {
	payout, err := h.scheduler.Complete(c.UserContext())
	if err != nil {
		return httpError(c, err)
	}
	awards := make([]fiber.Map, 0, len(payout.Awards))
	for _, a := range payout.Awards {
		awards = append(awards, fiber.Map{"winner": a.Winner, "amount": decimalOf(a.Amount)})
	}
	erc20 := make([]fiber.Map, 0, len(payout.ERC20))
	for _, a := range payout.ERC20 {
		erc20 = append(erc20, fiber.Map{"winner": a.Winner, "token": a.Token, "amount": decimalOf(a.Amount)})
	}
	return c.JSON(fiber.Map{"awards": awards, "erc20": erc20, "erc721": payout.ERC721, "no_winner": payout.Empty()})
}

// CancelAward abandons a stalled randomness request.
func (h *Handler) CancelAward(c *fiber.Ctx) error {
	if err := h.scheduler.Cancel(c.UserContext()); err != nil {
		return httpError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

type claimRequest struct {
	DripTokens []string `json:"drip_tokens"`
}

// ClaimDrips settles and pays the caller's drips.
func (h *Handler) ClaimDrips(c *fiber.Ctx) error {
	if h.drips == nil {
		return fiber.NewError(http.StatusNotFound, "drips are not enabled")
	}
	var req claimRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	caller, err := access.Caller(c.UserContext())
	if err != nil {
		return httpError(c, err)
	}
	paid, err := h.drips.UpdateAndClaimDrips(c.UserContext(), h.pool.cfg.ID, caller.ID, req.DripTokens)
	if err != nil {
		return httpError(c, err)
	}
	out := make(map[string]string, len(paid))
	for token, amount := range paid {
		out[token] = decimalOf(amount)
	}
	return c.JSON(fiber.Map{"holder": caller.ID, "claimed": out})
}

type rateRequest struct {
	Rate string `json:"rate"`
}

// SetReserveRate changes the reserve share of interest.
func (h *Handler) SetReserveRate(c *fiber.Ctx) error {
	var req rateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rate, err := parseAmount("rate", req.Rate)
	if err != nil {
		return err
	}
	if err := h.pool.SetReserveRate(c.UserContext(), rate); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"reserve_rate": decimalOf(rate)})
}

type reserveWithdrawRequest struct {
	To string `json:"to"`
}

// WithdrawReserve sends the reserve to a recipient.
func (h *Handler) WithdrawReserve(c *fiber.Ctx) error {
	var req reserveWithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := h.pool.WithdrawReserve(c.UserContext(), req.To)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"to": req.To, "amount": decimalOf(amount)})
}

type creditPlanRequest struct {
	Token string `json:"token"`
	Rate  string `json:"rate"`
	Limit string `json:"limit"`
}

// SetCreditPlan replaces the credit plan of a controlled token.
func (h *Handler) SetCreditPlan(c *fiber.Ctx) error {
	var req creditPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rate, err := parseAmount("rate", req.Rate)
	if err != nil {
		return err
	}
	limit, err := parseAmount("limit", req.Limit)
	if err != nil {
		return err
	}
	token := h.tokenOrTicket(req.Token)
	if err := h.pool.SetCreditPlanOf(c.UserContext(), token, credit.Plan{Rate: rate, Limit: limit}); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "rate": decimalOf(rate), "limit": decimalOf(limit)})
}

type liquidityCapRequest struct {
	Cap string `json:"cap"`
}

// SetLiquidityCap bounds deposits; an empty cap removes the bound.
func (h *Handler) SetLiquidityCap(c *fiber.Ctx) error {
	var req liquidityCapRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var limit *big.Int
	if req.Cap != "" {
		var err error
		if limit, err = parseAmount("cap", req.Cap); err != nil {
			return err
		}
	}
	if err := h.pool.SetLiquidityCap(c.UserContext(), limit); err != nil {
		return httpError(c, err)
	}
	if limit == nil {
		return c.JSON(fiber.Map{"liquidity_cap": nil})
	}
	return c.JSON(fiber.Map{"liquidity_cap": decimalOf(limit)})
}

type balanceDripRequest struct {
	Measure   string `json:"measure"`
	DripToken string `json:"drip_token"`
	Rate      string `json:"rate"`
}

func (h *Handler) balanceKey(req balanceDripRequest) drip.BalanceKey {
	return drip.BalanceKey{Source: h.pool.cfg.ID, Measure: h.tokenOrTicket(req.Measure), DripToken: req.DripToken}
}

// ActivateBalanceDrip starts or re-rates a balance drip.
func (h *Handler) ActivateBalanceDrip(c *fiber.Ctx) error {
	if h.drips == nil {
		return fiber.NewError(http.StatusNotFound, "drips are not enabled")
	}
	var req balanceDripRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rate, err := parseAmount("rate", req.Rate)
	if err != nil {
		return err
	}
	key := h.balanceKey(req)
	err = h.drips.ActivateBalanceDrip(c.UserContext(), key, rate)
	if errors.Is(err, drip.ErrDripActive) {
		err = h.drips.SetBalanceDripRate(c.UserContext(), key, rate)
	}
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"measure": key.Measure, "drip_token": key.DripToken, "rate": decimalOf(rate)})
}

// DeactivateBalanceDrip stops a balance drip.
func (h *Handler) DeactivateBalanceDrip(c *fiber.Ctx) error {
	if h.drips == nil {
		return fiber.NewError(http.StatusNotFound, "drips are not enabled")
	}
	var req balanceDripRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.drips.DeactivateBalanceDrip(c.UserContext(), h.balanceKey(req)); err != nil {
		return httpError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

type volumeDripRequest struct {
	Measure       string `json:"measure"`
	DripToken     string `json:"drip_token"`
	Referral      bool   `json:"referral"`
	PeriodSeconds int64  `json:"period_seconds"`
	DripAmount    string `json:"drip_amount"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	Deactivate    bool   `json:"deactivate"`
}

// VolumeDrip activates, updates or deactivates a volume drip.
func (h *Handler) VolumeDrip(c *fiber.Ctx) error {
	if h.drips == nil {
		return fiber.NewError(http.StatusNotFound, "drips are not enabled")
	}
	var req volumeDripRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := drip.VolumeKey{Source: h.pool.cfg.ID, Measure: h.tokenOrTicket(req.Measure), DripToken: req.DripToken, Referral: req.Referral}
	ctx := c.UserContext()
	if req.Deactivate {
		if err := h.drips.DeactivateVolumeDrip(ctx, key); err != nil {
			return httpError(c, err)
		}
		return c.SendStatus(http.StatusNoContent)
	}
	amount, err := parseAmount("drip_amount", req.DripAmount)
	if err != nil {
		return err
	}
	err = h.drips.ActivateVolumeDrip(ctx, drip.VolumeParams{
		VolumeKey:     key,
		PeriodSeconds: req.PeriodSeconds,
		DripAmount:    amount,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if errors.Is(err, drip.ErrDripActive) {
		err = h.drips.SetVolumeDrip(ctx, key, amount, req.EndTime)
	}
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"measure": key.Measure, "drip_token": key.DripToken, "referral": key.Referral, "drip_amount": decimalOf(amount)})
}

type erc20AwardRequest struct {
	Token  string `json:"token"`
	Remove bool   `json:"remove"`
}

// ExternalERC20Award adds or removes an ERC20 paid out with the prize.
func (h *Handler) ExternalERC20Award(c *fiber.Ctx) error {
	var req erc20AwardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var err error
	if req.Remove {
		err = h.scheduler.RemoveExternalERC20Award(c.UserContext(), req.Token)
	} else {
		err = h.scheduler.AddExternalERC20Award(c.UserContext(), req.Token)
	}
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"external_erc20": h.scheduler.Status().ExternalERC20})
}

type erc721AwardRequest struct {
	Collection string   `json:"collection"`
	TokenIDs   []string `json:"token_ids"`
}

// ExternalERC721Award adds NFTs the pool holds to the next prize.
func (h *Handler) ExternalERC721Award(c *fiber.Ctx) error {
	var req erc721AwardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.scheduler.AddExternalERC721Award(c.UserContext(), req.Collection, req.TokenIDs); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"external_erc721": h.scheduler.Status().ExternalERC721})
}
