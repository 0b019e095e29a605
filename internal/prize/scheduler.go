package prize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
	"github.com/congo-pay/prizepool/internal/rng"
)

var (
	ErrPeriodNotElapsed    = errors.New("prize period not elapsed")
	ErrRandomnessNotReady  = errors.New("randomness not ready")
	ErrAwardInProgress     = errors.New("award already in progress")
	ErrNoAwardInProgress   = errors.New("no award in progress")
	ErrRNGNotTimedOut      = errors.New("randomness request has not timed out")
	ErrCannotAwardExternal = errors.New("token cannot be awarded externally")
	ErrInvalidStrategy     = errors.New("invalid prize strategy")
)

// State is the phase of the current prize period.
type State string

const (
	Idle               State = "idle"
	Started            State = "started"
	AwaitingRandomness State = "awaiting_randomness"
	Completing         State = "completing"
)

// ERC20Award is an external fungible prize paid to one winner.
type ERC20Award struct {
	Winner string   `json:"winner"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

// ERC721Award is a set of external NFTs paid to one winner.
type ERC721Award struct {
	Winner     string   `json:"winner"`
	Collection string   `json:"collection"`
	TokenIDs   []string `json:"token_ids"`
}

// Payout is everything a completed award pays out, applied by the pool as a
// single unit.
type Payout struct {
	Awards []Allocation  `json:"awards"`
	ERC20  []ERC20Award  `json:"erc20"`
	ERC721 []ERC721Award `json:"erc721"`
}

// Empty reports whether nobody was drawn.
func (p Payout) Empty() bool { return len(p.Awards) == 0 }

// Draw is what the pool exposes to a Planner while it holds its lock.
type Draw struct {
	Award        *big.Int
	Drawer       Drawer
	ERC20Balance func(token string) (*big.Int, error)
}

// Planner turns a Draw into a Payout. It must not call back into the pool.
type Planner func(d Draw) (Payout, error)

// Pool is the part of the prize pool the scheduler drives.
type Pool interface {
	// BeginAward pays fee, runs request and settles the award, all or
	// nothing.
	BeginAward(ctx context.Context, feeToken string, fee *big.Int, request func(ctx context.Context) error) (*big.Int, error)
	Distribute(ctx context.Context, plan Planner) (Payout, error)
	CanAwardExternal(token string) bool
	OwnsERC721(collection, id string) bool
}

// Config holds the period parameters.
type Config struct {
	PeriodSeconds     int64
	PeriodStart       int64
	Strategy          Strategy
	RNGTimeoutSeconds int64
}

// Scheduler drives the period state machine
// Idle -> Started -> AwaitingRandomness -> Completing -> Idle.
type Scheduler struct {
	mu     sync.Mutex
	cfg    Config
	pool   Pool
	rng    rng.Service
	clock  clockwork.Clock
	bus    *events.Bus
	logger *slog.Logger

	state       State
	periodStart int64
	request     *rng.Request
	award       *big.Int

	erc20      []string
	erc721     map[string][]string
	erc721Keys []string
}

// NewScheduler validates cfg and returns an idle scheduler.
func NewScheduler(cfg Config, pool Pool, rngSvc rng.Service, clock clockwork.Clock, bus *events.Bus, logger *slog.Logger) (*Scheduler, error) {
	if cfg.PeriodSeconds <= 0 {
		return nil, fmt.Errorf("%w: prize period must be positive", ErrInvalidStrategy)
	}
	if cfg.RNGTimeoutSeconds <= 0 {
		cfg.RNGTimeoutSeconds = 1800
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:         cfg,
		pool:        pool,
		rng:         rngSvc,
		clock:       clock,
		bus:         bus,
		logger:      logger,
		state:       Idle,
		periodStart: cfg.PeriodStart,
		erc721:      make(map[string][]string),
	}, nil
}

func (s *Scheduler) now() int64 { return s.clock.Now().Unix() }

func (s *Scheduler) periodEnd() int64 { return s.periodStart + s.cfg.PeriodSeconds }

// Remaining is the number of seconds left in the current period.
func (s *Scheduler) Remaining() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining()
}

func (s *Scheduler) remaining() int64 {
	if left := s.periodEnd() - s.now(); left > 0 {
		return left
	}
	return 0
}

// CanStartAward reports whether Start would succeed now.
func (s *Scheduler) CanStartAward() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Idle && s.now() >= s.periodEnd()
}

// CanCompleteAward reports whether Complete would succeed now.
func (s *Scheduler) CanCompleteAward(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitingRandomness {
		return false
	}
	done, err := s.rng.IsRequestComplete(ctx, s.request.ID)
	return err == nil && done
}

// Start ends the period: the pool pays the request fee, randomness is
// requested and the award is settled. A failure in any step changes nothing.
func (s *Scheduler) Start(ctx context.Context) (rng.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return rng.Request{}, ErrAwardInProgress
	}
	if s.now() < s.periodEnd() {
		return rng.Request{}, fmt.Errorf("%w: %ds remaining", ErrPeriodNotElapsed, s.remaining())
	}
	s.state = Started

	feeToken, fee, err := s.rng.RequestFee(ctx)
	if err != nil {
		s.state = Idle
		return rng.Request{}, fmt.Errorf("randomness fee: %w", err)
	}
	var req rng.Request
	award, err := s.pool.BeginAward(ctx, feeToken, fee, func(ctx context.Context) error {
		r, err := s.rng.RequestRandomNumber(ctx)
		if err != nil {
			return fmt.Errorf("request randomness: %w", err)
		}
		req = r
		return nil
	})
	if err != nil {
		s.state = Idle
		return rng.Request{}, err
	}

	s.request = &req
	s.award = award
	s.state = AwaitingRandomness

	operator := ""
	if p, ok := access.FromContext(ctx); ok {
		operator = p.ID
	}
	s.bus.Publish(ctx, events.AwardStarted{Operator: operator, RequestID: req.ID, Award: fixedpoint.Clone(award)})
	s.logger.InfoContext(ctx, "award started", slog.String("request_id", req.ID), slog.String("award", award.String()))
	return req, nil
}

// Complete draws the winners once randomness is available and has the pool
// pay them. With nobody to draw the award carries into the next period.
func (s *Scheduler) Complete(ctx context.Context) (Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingRandomness {
		return Payout{}, ErrNoAwardInProgress
	}
	done, err := s.rng.IsRequestComplete(ctx, s.request.ID)
	if err != nil {
		return Payout{}, err
	}
	if !done {
		return Payout{}, ErrRandomnessNotReady
	}
	random, err := s.rng.RandomNumber(ctx, s.request.ID)
	if err != nil {
		return Payout{}, err
	}

	s.state = Completing
	var award *big.Int
	payout, err := s.pool.Distribute(ctx, func(d Draw) (Payout, error) {
		award = d.Award
		return s.plan(d, random)
	})
	if err != nil {
		s.state = AwaitingRandomness
		return Payout{}, err
	}

	requestID := s.request.ID
	if payout.Empty() {
		s.bus.Publish(ctx, events.NoWinner{RequestID: requestID, Award: fixedpoint.Clone(award)})
		s.logger.InfoContext(ctx, "award had no winner", slog.String("request_id", requestID))
	} else {
		s.erc721 = make(map[string][]string)
		s.erc721Keys = nil
		s.bus.Publish(ctx, events.AwardCompleted{RequestID: requestID, RandomNumber: random, Winners: winnersOf(payout.Awards)})
		s.logger.InfoContext(ctx, "award completed", slog.String("request_id", requestID), slog.Int("winners", len(payout.Awards)))
	}

	s.periodStart = s.now()
	s.request = nil
	s.award = nil
	s.state = Idle
	return payout, nil
}

// plan builds the payout for a draw: the ticket award per the strategy,
// external ERC20 balances in the same proportions, and NFTs dealt to
// winners in draw order.
func (s *Scheduler) plan(d Draw, random *big.Int) (Payout, error) {
	allocs := s.cfg.Strategy.Distribute(d.Drawer, d.Award, random)
	if len(allocs) == 0 {
		return Payout{}, nil
	}
	payout := Payout{Awards: allocs}

	for _, token := range s.erc20 {
		bal, err := d.ERC20Balance(token)
		if err != nil {
			return Payout{}, err
		}
		if bal.Sign() == 0 {
			continue
		}
		for i, amount := range proportional(allocs, d.Award, bal) {
			if amount.Sign() > 0 {
				payout.ERC20 = append(payout.ERC20, ERC20Award{Winner: allocs[i].Winner, Token: token, Amount: amount})
			}
		}
	}

	for _, collection := range s.erc721Keys {
		dealt := make([][]string, len(allocs))
		for j, id := range s.erc721[collection] {
			dealt[j%len(allocs)] = append(dealt[j%len(allocs)], id)
		}
		for i, ids := range dealt {
			if len(ids) > 0 {
				payout.ERC721 = append(payout.ERC721, ERC721Award{Winner: allocs[i].Winner, Collection: collection, TokenIDs: ids})
			}
		}
	}
	return payout, nil
}

// Cancel abandons an award whose randomness request timed out.
func (s *Scheduler) Cancel(ctx context.Context) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingRandomness {
		return ErrNoAwardInProgress
	}
	if s.now() < s.request.RequestedAt+s.cfg.RNGTimeoutSeconds {
		return ErrRNGNotTimedOut
	}
	id := s.request.ID
	s.request = nil
	s.award = nil
	s.state = Idle
	s.bus.Publish(ctx, events.AwardCancelled{RequestID: id})
	return nil
}

// AddExternalERC20Award adds token to the tokens paid out alongside the award.
func (s *Scheduler) AddExternalERC20Award(ctx context.Context, token string) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrAwardInProgress
	}
	if !s.pool.CanAwardExternal(token) {
		return fmt.Errorf("%w: %s", ErrCannotAwardExternal, token)
	}
	for _, t := range s.erc20 {
		if t == token {
			return nil
		}
	}
	s.erc20 = append(s.erc20, token)
	s.bus.Publish(ctx, events.ExternalAwardAdded{Token: token})
	return nil
}

// RemoveExternalERC20Award drops token from the external award list.
func (s *Scheduler) RemoveExternalERC20Award(ctx context.Context, token string) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrAwardInProgress
	}
	for i, t := range s.erc20 {
		if t == token {
			s.erc20 = append(s.erc20[:i], s.erc20[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not listed", ErrCannotAwardExternal, token)
}

// AddExternalERC721Award queues NFTs the pool holds for the next award.
func (s *Scheduler) AddExternalERC721Award(ctx context.Context, collection string, ids []string) error {
	if _, err := access.RequireOwner(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrAwardInProgress
	}
	if !s.pool.CanAwardExternal(collection) {
		return fmt.Errorf("%w: %s", ErrCannotAwardExternal, collection)
	}
	for _, id := range ids {
		if !s.pool.OwnsERC721(collection, id) {
			return fmt.Errorf("%w: pool does not hold %s/%s", ErrCannotAwardExternal, collection, id)
		}
	}

	existing, ok := s.erc721[collection]
	if !ok {
		s.erc721Keys = append(s.erc721Keys, collection)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, dup := seen[id]; !dup {
			existing = append(existing, id)
			seen[id] = struct{}{}
		}
	}
	s.erc721[collection] = existing
	s.bus.Publish(ctx, events.ExternalAwardAdded{Token: collection, TokenIDs: append([]string(nil), ids...)})
	return nil
}

// Status is a snapshot of the scheduler.
type Status struct {
	State          State               `json:"state"`
	PeriodStart    int64               `json:"period_start"`
	PeriodSeconds  int64               `json:"period_seconds"`
	Remaining      int64               `json:"remaining_seconds"`
	RequestID      string              `json:"request_id,omitempty"`
	RequestedAt    int64               `json:"requested_at,omitempty"`
	StartedAward   *big.Int            `json:"started_award,omitempty"`
	Strategy       Strategy            `json:"strategy"`
	ExternalERC20  []string            `json:"external_erc20"`
	ExternalERC721 map[string][]string `json:"external_erc721"`
}

// Status returns the current scheduler snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:          s.state,
		PeriodStart:    s.periodStart,
		PeriodSeconds:  s.cfg.PeriodSeconds,
		Remaining:      s.remaining(),
		Strategy:       s.cfg.Strategy,
		ExternalERC20:  append([]string(nil), s.erc20...),
		ExternalERC721: make(map[string][]string, len(s.erc721)),
	}
	if s.request != nil {
		st.RequestID = s.request.ID
		st.RequestedAt = s.request.RequestedAt
		st.StartedAward = fixedpoint.Clone(s.award)
	}
	for k, ids := range s.erc721 {
		st.ExternalERC721[k] = append([]string(nil), ids...)
	}
	return st
}
