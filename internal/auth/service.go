package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/identity"
)

// ErrInvalidToken covers malformed, expired and revoked tokens.
var ErrInvalidToken = errors.New("invalid token")

const issuer = "prizepool"

// Claims carried by access tokens. Subject is the operator ID.
type Claims struct {
	Role    access.Role `json:"role"`
	Version int         `json:"ver"`
	jwt.RegisteredClaims
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Service issues and verifies operator access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	ids    *identity.Service
	repo   identity.Repository
	clock  clockwork.Clock
}

func NewService(secret string, ttl time.Duration, ids *identity.Service, repo identity.Repository, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{secret: []byte(secret), ttl: ttl, ids: ids, repo: repo, clock: clock}
}

// Login authenticates the operator and signs an HS256 access token.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (Token, error) {
	op, err := s.ids.Authenticate(ctx, creds)
	if err != nil {
		return Token{}, err
	}
	now := s.clock.Now()
	claims := Claims{
		Role:    op.Role,
		Version: op.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   op.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify parses the token and checks it against the operator's current
// token version.
func (s *Service) Verify(ctx context.Context, raw string) (identity.Operator, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return identity.Operator{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	op, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Operator{}, ErrInvalidToken
		}
		return identity.Operator{}, err
	}
	if op.TokenVersion != claims.Version {
		return identity.Operator{}, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return op, nil
}

// Logout bumps the operator's token version so older tokens stop verifying.
func (s *Service) Logout(ctx context.Context, name string) error {
	op, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, op.ID, op.TokenVersion+1)
}
