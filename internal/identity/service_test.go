package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/logging"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository(), "pool")
	ctx := context.Background()

	op, err := svc.Register(ctx, Credentials{Name: "alice", Secret: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, access.RoleHolder, op.Role)
	require.Equal(t, access.Principal{ID: "alice", Role: access.RoleHolder}, op.Principal())

	authed, err := svc.Authenticate(ctx, Credentials{Name: "alice", Secret: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, op.ID, authed.ID)

	_, err = svc.Authenticate(ctx, Credentials{Name: "alice", Secret: "wrong-horse"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, Credentials{Name: "nobody", Secret: "correct-horse"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejections(t *testing.T) {
	svc := NewService(NewMemoryRepository(), "pool")
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Name: "pool", Secret: "long-enough"})
	require.ErrorIs(t, err, ErrExists)
	_, err = svc.Register(ctx, Credentials{Name: "bob", Secret: "short"})
	require.ErrorIs(t, err, ErrWeakSecret)
	_, err = svc.Register(ctx, Credentials{Name: "b b", Secret: "long-enough"})
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.Register(ctx, Credentials{Name: "bob", Secret: "long-enough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, Credentials{Name: "bob", Secret: "long-enough"})
	require.ErrorIs(t, err, ErrExists)
}

func TestEnsureOwnerIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	creds := Credentials{Name: "owner", Secret: "owner-secret"}

	require.NoError(t, svc.EnsureOwner(ctx, creds, logging.Discard()))
	first, err := repo.FindByName(ctx, "owner")
	require.NoError(t, err)
	require.Equal(t, access.RoleOwner, first.Role)

	require.NoError(t, svc.EnsureOwner(ctx, creds, logging.Discard()))
	again, err := repo.FindByName(ctx, "owner")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
}
