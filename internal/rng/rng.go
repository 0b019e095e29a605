// Package rng provides the randomness services the prize scheduler draws
// winners with.
package rng

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/sha3"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

var (
	// ErrUnknownRequest is returned for ids the service never issued.
	ErrUnknownRequest = errors.New("unknown randomness request")
	// ErrNotFulfilled is returned when reading a request that is still pending.
	ErrNotFulfilled = errors.New("randomness request not fulfilled")
)

// Request is an accepted randomness request.
type Request struct {
	ID          string
	FeeToken    string
	FeeAmount   *big.Int
	RequestedAt int64
}

// Service requests and delivers random numbers asynchronously.
type Service interface {
	// RequestFee reports what the next request costs. An empty token means free.
	RequestFee(ctx context.Context) (token string, amount *big.Int, err error)
	RequestRandomNumber(ctx context.Context) (Request, error)
	IsRequestComplete(ctx context.Context, id string) (bool, error)
	RandomNumber(ctx context.Context, id string) (*big.Int, error)
}

// LocalConfig configures a Local service.
type LocalConfig struct {
	// Secret seeds every value; keep it private to the operator.
	Secret []byte
	// DelaySeconds is how long a request stays pending.
	DelaySeconds int64
	FeeToken     string
	FeeAmount    *big.Int
}

// Local derives values as keccak256(secret ‖ id ‖ requestedAt) and releases
// them DelaySeconds after the request, on the injected clock.
type Local struct {
	mu       sync.Mutex
	cfg      LocalConfig
	clock    clockwork.Clock
	requests map[string]Request
}

// NewLocal returns a local randomness service.
func NewLocal(cfg LocalConfig, clock clockwork.Clock) *Local {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg.FeeAmount = fixedpoint.Clone(cfg.FeeAmount)
	return &Local{cfg: cfg, clock: clock, requests: make(map[string]Request)}
}

func (l *Local) RequestFee(context.Context) (string, *big.Int, error) {
	return l.cfg.FeeToken, fixedpoint.Clone(l.cfg.FeeAmount), nil
}

func (l *Local) RequestRandomNumber(context.Context) (Request, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req := Request{
		ID:          uuid.NewString(),
		FeeToken:    l.cfg.FeeToken,
		FeeAmount:   fixedpoint.Clone(l.cfg.FeeAmount),
		RequestedAt: l.clock.Now().Unix(),
	}
	l.requests[req.ID] = req
	return req, nil
}

func (l *Local) IsRequestComplete(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	return l.clock.Now().Unix() >= req.RequestedAt+l.cfg.DelaySeconds, nil
}

func (l *Local) RandomNumber(ctx context.Context, id string) (*big.Int, error) {
	done, err := l.IsRequestComplete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, fmt.Errorf("%w: %s", ErrNotFulfilled, id)
	}
	l.mu.Lock()
	req := l.requests[id]
	l.mu.Unlock()

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(req.RequestedAt))
	h := sha3.NewLegacyKeccak256()
	h.Write(l.cfg.Secret)
	h.Write([]byte(req.ID))
	h.Write(ts[:])
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// Manual is fulfilled explicitly by the caller. Tests use it to pick winners.
type Manual struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	seq       int
	fulfilled map[string]*big.Int
	requests  map[string]Request
	feeToken  string
	feeAmount *big.Int
}

// NewManual returns a service whose requests stay pending until Fulfill.
func NewManual(clock clockwork.Clock) *Manual {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manual{clock: clock, fulfilled: make(map[string]*big.Int), requests: make(map[string]Request)}
}

// SetFee changes what subsequent requests cost.
func (m *Manual) SetFee(token string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeToken, m.feeAmount = token, fixedpoint.Clone(amount)
}

func (m *Manual) RequestFee(context.Context) (string, *big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeToken, fixedpoint.Clone(m.feeAmount), nil
}

func (m *Manual) RequestRandomNumber(context.Context) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	req := Request{
		ID:          fmt.Sprintf("manual-%d", m.seq),
		FeeToken:    m.feeToken,
		FeeAmount:   fixedpoint.Clone(m.feeAmount),
		RequestedAt: m.clock.Now().Unix(),
	}
	m.requests[req.ID] = req
	return req, nil
}

// LastRequest returns the id of the most recent request.
func (m *Manual) LastRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq == 0 {
		return ""
	}
	return fmt.Sprintf("manual-%d", m.seq)
}

// Fulfill delivers value for request id.
func (m *Manual) Fulfill(id string, value *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	m.fulfilled[id] = fixedpoint.Clone(value)
	return nil
}

func (m *Manual) IsRequestComplete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	_, ok := m.fulfilled[id]
	return ok, nil
}

func (m *Manual) RandomNumber(_ context.Context, id string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.fulfilled[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFulfilled, id)
	}
	return fixedpoint.Clone(v), nil
}
