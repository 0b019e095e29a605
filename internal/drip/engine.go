// Package drip accounts the secondary rewards a pool streams to its
// depositors: balance drips that accrue continuously with holdings, and
// volume drips that split a fixed amount per period by deposit activity.
package drip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/ledger"
)

var (
	// ErrDripNotFound is returned when a drip is addressed that was never activated.
	ErrDripNotFound = errors.New("drip not found")
	// ErrDripActive is returned when activating a drip that is already running.
	ErrDripActive = errors.New("drip already active")
	// ErrInvalidDrip rejects malformed drip parameters.
	ErrInvalidDrip = errors.New("invalid drip parameters")
)

// BalanceKey identifies a balance drip.
type BalanceKey struct {
	Source    string `json:"source"`
	Measure   string `json:"measure"`
	DripToken string `json:"drip_token"`
}

// VolumeKey identifies a volume drip.
type VolumeKey struct {
	Source    string `json:"source"`
	Measure   string `json:"measure"`
	DripToken string `json:"drip_token"`
	Referral  bool   `json:"referral"`
}

// VolumeParams configures a volume drip. EndTime zero means open-ended.
type VolumeParams struct {
	VolumeKey
	PeriodSeconds int64
	DripAmount    *big.Int
	StartTime     int64
	EndTime       int64
}

// Engine owns all drip state. Reward tokens are paid out of the ledger
// account named by Account, which the operator funds.
type Engine struct {
	mu      sync.Mutex
	account string
	ledger  ledger.Ledger
	clock   clockwork.Clock
	bus     *events.Bus
	logger  *slog.Logger

	balanceDrips map[BalanceKey]*BalanceDrip
	volumeDrips  map[VolumeKey]*VolumeDrip
	owed         map[string]*big.Int
}

// NewEngine constructs an engine paying from account.
func NewEngine(account string, led ledger.Ledger, clock clockwork.Clock, bus *events.Bus, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		account:      account,
		ledger:       led,
		clock:        clock,
		bus:          bus,
		logger:       logger,
		balanceDrips: make(map[BalanceKey]*BalanceDrip),
		volumeDrips:  make(map[VolumeKey]*VolumeDrip),
		owed:         make(map[string]*big.Int),
	}
}

// Account returns the ledger account reward tokens are paid from.
func (e *Engine) Account() string { return e.account }

func (e *Engine) now() int64 { return e.clock.Now().Unix() }

func owedKey(dripToken, holder string) string { return dripToken + "\x00" + holder }

func (e *Engine) addOwed(dripToken, holder string, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	k := owedKey(dripToken, holder)
	cur, ok := e.owed[k]
	if !ok {
		cur = new(big.Int)
		e.owed[k] = cur
	}
	cur.Add(cur, amount)
}

// ActivateBalanceDrip starts streaming rate tokens per second. Reactivating a
// deactivated drip keeps its exchange rate so past earnings stay claimable.
func (e *Engine) ActivateBalanceDrip(ctx context.Context, key BalanceKey, rate *big.Int) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	if rate == nil || rate.Sign() < 0 {
		return fmt.Errorf("%w: negative rate", ErrInvalidDrip)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if d, ok := e.balanceDrips[key]; ok {
		if d.Active {
			return fmt.Errorf("%w: %s/%s", ErrDripActive, key.Measure, key.DripToken)
		}
		d.drip(new(big.Int), now)
		d.RatePerSecond = fixedpoint.Clone(rate)
		d.Active = true
	} else {
		e.balanceDrips[key] = newBalanceDrip(rate, now)
	}
	e.bus.Publish(ctx, events.BalanceDripActivated{Source: key.Source, Measure: key.Measure, DripToken: key.DripToken, RatePerSecond: fixedpoint.Clone(rate)})
	return nil
}

// DeactivateBalanceDrip stops a drip after settling it up to now.
func (e *Engine) DeactivateBalanceDrip(ctx context.Context, key BalanceKey) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.balanceDrips[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrDripNotFound, key.Measure, key.DripToken)
	}
	supply, err := e.ledger.TotalSupply(ctx, key.Measure)
	if err != nil {
		return err
	}
	d.drip(supply, e.now())
	d.RatePerSecond = new(big.Int)
	d.Active = false
	e.bus.Publish(ctx, events.BalanceDripDeactivated{Source: key.Source, Measure: key.Measure, DripToken: key.DripToken})
	return nil
}

// SetBalanceDripRate settles a drip up to now and changes its rate.
func (e *Engine) SetBalanceDripRate(ctx context.Context, key BalanceKey, rate *big.Int) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	if rate == nil || rate.Sign() < 0 {
		return fmt.Errorf("%w: negative rate", ErrInvalidDrip)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.balanceDrips[key]
	if !ok || !d.Active {
		return fmt.Errorf("%w: %s/%s", ErrDripNotFound, key.Measure, key.DripToken)
	}
	supply, err := e.ledger.TotalSupply(ctx, key.Measure)
	if err != nil {
		return err
	}
	d.drip(supply, e.now())
	d.RatePerSecond = fixedpoint.Clone(rate)
	e.bus.Publish(ctx, events.ConfigChanged{Setting: "balance_drip_rate:" + key.Measure + "/" + key.DripToken, Value: rate.String()})
	return nil
}

// ActivateVolumeDrip starts a volume drip. StartTime zero anchors the first
// period at now.
func (e *Engine) ActivateVolumeDrip(ctx context.Context, params VolumeParams) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	if params.PeriodSeconds <= 0 || params.DripAmount == nil || params.DripAmount.Sign() < 0 {
		return fmt.Errorf("%w: period and amount must be positive", ErrInvalidDrip)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	start := params.StartTime
	if start == 0 {
		start = now
	}
	if params.EndTime != 0 && params.EndTime <= start {
		return fmt.Errorf("%w: end time before start", ErrInvalidDrip)
	}

	if d, ok := e.volumeDrips[params.VolumeKey]; ok {
		if d.Active {
			return fmt.Errorf("%w: %s/%s", ErrDripActive, params.Measure, params.DripToken)
		}
		d.reanchor(params.PeriodSeconds, params.DripAmount, start, params.EndTime)
	} else {
		e.volumeDrips[params.VolumeKey] = newVolumeDrip(params.PeriodSeconds, params.DripAmount, start, params.EndTime)
	}
	e.bus.Publish(ctx, events.VolumeDripActivated{
		Source: params.Source, Measure: params.Measure, DripToken: params.DripToken, Referral: params.Referral,
		PeriodSeconds: params.PeriodSeconds, DripAmount: fixedpoint.Clone(params.DripAmount),
	})
	return nil
}

// SetVolumeDrip changes the amount paid by periods opened from now on and
// the end time.
func (e *Engine) SetVolumeDrip(ctx context.Context, key VolumeKey, amount *big.Int, endTime int64) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidDrip)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.volumeDrips[key]
	if !ok || !d.Active {
		return fmt.Errorf("%w: %s/%s", ErrDripNotFound, key.Measure, key.DripToken)
	}
	d.DripAmount = fixedpoint.Clone(amount)
	d.EndTime = endTime
	e.bus.Publish(ctx, events.ConfigChanged{Setting: "volume_drip_amount:" + key.Measure + "/" + key.DripToken, Value: amount.String()})
	return nil
}

// DeactivateVolumeDrip stops recording volume. Recorded periods remain
// claimable once they close.
func (e *Engine) DeactivateVolumeDrip(ctx context.Context, key VolumeKey) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.volumeDrips[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrDripNotFound, key.Measure, key.DripToken)
	}
	d.Active = false
	e.bus.Publish(ctx, events.VolumeDripDeactivated{Source: key.Source, Measure: key.Measure, DripToken: key.DripToken, Referral: key.Referral})
	return nil
}

// captureBalanceDrips settles every balance drip on (source, measure) with the
// supply and holder balance in force before the change being reported.
func (e *Engine) captureBalanceDrips(source, measure, holder string, balanceBefore, supplyBefore *big.Int, now int64) {
	for key, d := range e.balanceDrips {
		if key.Source != source || key.Measure != measure {
			continue
		}
		d.drip(supplyBefore, now)
		if holder != "" {
			e.addOwed(key.DripToken, holder, d.capture(holder, balanceBefore))
		}
	}
}

func (e *Engine) recordVolume(source, measure, holder string, amount *big.Int, referral bool, now int64) {
	for key, d := range e.volumeDrips {
		if key.Source == source && key.Measure == measure && key.Referral == referral {
			d.record(holder, amount, now)
		}
	}
}

func (e *Engine) unrecordVolume(source, measure, holder string, amount *big.Int, referral bool, now int64) {
	for key, d := range e.volumeDrips {
		if key.Source == source && key.Measure == measure && key.Referral == referral {
			d.unrecord(holder, amount, now)
		}
	}
}

// UpdateDrips settles every drip of source for holder into its owed balances
// using current ledger balances.
func (e *Engine) UpdateDrips(ctx context.Context, source, holder string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateDrips(ctx, source, holder)
}

func (e *Engine) updateDrips(ctx context.Context, source, holder string) error {
	now := e.now()
	for _, measure := range e.measures(source) {
		bal, err := e.ledger.BalanceOf(ctx, measure, holder)
		if err != nil {
			return err
		}
		supply, err := e.ledger.TotalSupply(ctx, measure)
		if err != nil {
			return err
		}
		e.captureBalanceDrips(source, measure, holder, bal, supply, now)
	}
	for key, d := range e.volumeDrips {
		if key.Source == source {
			e.addOwed(key.DripToken, holder, d.collect(holder, now))
		}
	}
	return nil
}

func (e *Engine) measures(source string) []string {
	seen := map[string]struct{}{}
	for key := range e.balanceDrips {
		if key.Source == source {
			seen[key.Measure] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Claim pays holder what it is owed in dripToken, capped by what the engine
// account holds. Any shortfall stays owed.
func (e *Engine) Claim(ctx context.Context, holder, dripToken string) (*big.Int, error) {
	e.mu.Lock()
	return e.payOwed(ctx, holder, dripToken, nil)
}

// payOwed pays holder up to limit of what it is owed in dripToken; a nil
// limit pays everything owed. It is entered with e.mu held and releases it.
func (e *Engine) payOwed(ctx context.Context, holder, dripToken string, limit *big.Int) (*big.Int, error) {
	k := owedKey(dripToken, holder)
	owed := fixedpoint.Clone(e.owed[k])
	if limit != nil {
		owed = fixedpoint.Min(owed, limit)
	}
	if owed.Sign() == 0 {
		e.mu.Unlock()
		return new(big.Int), nil
	}
	available, err := e.ledger.BalanceOf(ctx, dripToken, e.account)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	pay := fixedpoint.Min(owed, available)
	if pay.Sign() == 0 {
		e.mu.Unlock()
		e.logger.Warn("drip claim unfunded", slog.String("holder", holder), slog.String("drip_token", dripToken), slog.String("owed", owed.String()))
		return new(big.Int), nil
	}
	e.owed[k] = new(big.Int).Sub(e.owed[k], pay)
	left := fixedpoint.Clone(e.owed[k])
	e.mu.Unlock()

	// The transfer may run ledger hooks that report back into the engine, so
	// it happens outside the lock.
	if err := e.ledger.Transfer(ctx, dripToken, e.account, holder, pay); err != nil {
		e.mu.Lock()
		e.addOwed(dripToken, holder, pay)
		e.mu.Unlock()
		return nil, fmt.Errorf("pay drip %s: %w", dripToken, err)
	}

	e.bus.Publish(ctx, events.DripClaimed{Holder: holder, DripToken: dripToken, Amount: pay, Owed: left})
	return pay, nil
}

// UpdateAndClaimDrips settles holder's drips on source and claims each of
// dripTokens. An empty list claims every token holder is owed.
func (e *Engine) UpdateAndClaimDrips(ctx context.Context, source, holder string, dripTokens []string) (map[string]*big.Int, error) {
	e.mu.Lock()
	if err := e.updateDrips(ctx, source, holder); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if len(dripTokens) == 0 {
		dripTokens = e.owedTokens(holder)
	}
	e.mu.Unlock()

	paid := make(map[string]*big.Int, len(dripTokens))
	for _, token := range dripTokens {
		amount, err := e.Claim(ctx, holder, token)
		if err != nil {
			return paid, err
		}
		paid[token] = amount
	}
	return paid, nil
}

func (e *Engine) owedTokens(holder string) []string {
	var out []string
	for k, v := range e.owed {
		token, h := splitOwedKey(k)
		if h == holder && v.Sign() > 0 {
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return out
}

func splitOwedKey(k string) (token, holder string) {
	for i := 0; i < len(k); i++ {
		if k[i] == 0 {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

// ClaimPeriod settles a single closed period of a volume drip for holder,
// independent of the order in which periods closed, and pays that share
// only. Other owed balances in the drip token are left for Claim.
func (e *Engine) ClaimPeriod(ctx context.Context, key VolumeKey, holder string, seq int64) (*big.Int, error) {
	e.mu.Lock()
	d, ok := e.volumeDrips[key]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s", ErrDripNotFound, key.Measure, key.DripToken)
	}
	share := d.collectPeriod(holder, seq, e.now())
	e.addOwed(key.DripToken, holder, share)
	return e.payOwed(ctx, holder, key.DripToken, share)
}

// BalanceOfDrip projects what holder could claim in dripToken right now
// without changing any state.
func (e *Engine) BalanceOfDrip(ctx context.Context, source, holder, dripToken string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	total := fixedpoint.Clone(e.owed[owedKey(dripToken, holder)])
	for key, d := range e.balanceDrips {
		if key.Source != source || key.DripToken != dripToken {
			continue
		}
		bal, err := e.ledger.BalanceOf(ctx, key.Measure, holder)
		if err != nil {
			return nil, err
		}
		supply, err := e.ledger.TotalSupply(ctx, key.Measure)
		if err != nil {
			return nil, err
		}
		total.Add(total, d.pending(holder, bal, supply, now))
	}
	for key, d := range e.volumeDrips {
		if key.Source == source && key.DripToken == dripToken {
			total.Add(total, d.pending(holder, now))
		}
	}
	return total, nil
}

// BalanceDripView is a read-only snapshot of a balance drip.
type BalanceDripView struct {
	BalanceKey
	RatePerSecond *big.Int `json:"rate_per_second"`
	ExchangeRate  *big.Int `json:"exchange_rate"`
	Timestamp     int64    `json:"timestamp"`
	Active        bool     `json:"active"`
}

// VolumeDripView is a read-only snapshot of a volume drip.
type VolumeDripView struct {
	VolumeKey
	PeriodSeconds int64        `json:"period_seconds"`
	DripAmount    *big.Int     `json:"drip_amount"`
	StartTime     int64        `json:"start_time"`
	EndTime       int64        `json:"end_time"`
	Active        bool         `json:"active"`
	Periods       []PeriodView `json:"periods"`
}

// Drips lists the drips attached to source.
func (e *Engine) Drips(source string) ([]BalanceDripView, []VolumeDripView) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var balances []BalanceDripView
	for key, d := range e.balanceDrips {
		if key.Source != source {
			continue
		}
		balances = append(balances, BalanceDripView{
			BalanceKey:    key,
			RatePerSecond: fixedpoint.Clone(d.RatePerSecond),
			ExchangeRate:  fixedpoint.Clone(d.ExchangeRate),
			Timestamp:     d.Timestamp,
			Active:        d.Active,
		})
	}
	var volumes []VolumeDripView
	for key, d := range e.volumeDrips {
		if key.Source != source {
			continue
		}
		volumes = append(volumes, VolumeDripView{
			VolumeKey:     key,
			PeriodSeconds: d.PeriodSeconds,
			DripAmount:    fixedpoint.Clone(d.DripAmount),
			StartTime:     d.StartTime,
			EndTime:       d.EndTime,
			Active:        d.Active,
			Periods:       d.views(now),
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Measure+balances[i].DripToken < balances[j].Measure+balances[j].DripToken })
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].Measure+volumes[i].DripToken < volumes[j].Measure+volumes[j].DripToken })
	return balances, volumes
}
