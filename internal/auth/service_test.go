package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/identity"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) (*Service, *clockwork.FakeClock) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo)
	_, err := ids.Register(context.Background(), identity.Credentials{Name: "alice", Secret: "correct-horse"})
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewService(testSecret, 15*time.Minute, ids, repo, clock), clock
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Login(ctx, identity.Credentials{Name: "alice", Secret: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, int64(900), tok.ExpiresIn)

	op, err := svc.Verify(ctx, tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", op.Name)
	require.Equal(t, access.RoleHolder, op.Principal().Role)
}

func TestLoginRejectsWrongSecret(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Login(context.Background(), identity.Credentials{Name: "alice", Secret: "wrong-secret"})
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	tok, err := svc.Login(ctx, identity.Credentials{Name: "alice", Secret: "correct-horse"})
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = svc.Verify(ctx, tok.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tok, err := svc.Login(ctx, identity.Credentials{Name: "alice", Secret: "correct-horse"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "alice"))
	_, err = svc.Verify(ctx, tok.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	fresh, err := svc.Login(ctx, identity.Credentials{Name: "alice", Secret: "correct-horse"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, fresh.AccessToken)
	require.NoError(t, err)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc, clock := newTestService(t)
	claims := Claims{
		Role: access.RoleOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "anyone",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-other-secret-some-other-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), forged)
	require.ErrorIs(t, err, ErrInvalidToken)
}
