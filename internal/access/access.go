// Package access carries the authenticated caller through a request context
// so every pool operation checks roles against an explicit value.
package access

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the caller lacks the role an operation needs.
var ErrUnauthorized = errors.New("unauthorized")

// Role is the coarse permission level of a principal.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleHolder Role = "holder"
	// RoleKeeper is used by the scheduler process for permissionless maintenance.
	RoleKeeper Role = "keeper"
)

// Principal identifies the caller of an operation. ID doubles as the
// caller's ledger account.
type Principal struct {
	ID   string
	Role Role
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.ID != ""
}

// Caller returns the principal or ErrUnauthorized when none is present.
func Caller(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, fmt.Errorf("%w: no authenticated caller", ErrUnauthorized)
	}
	return p, nil
}

// RequireOwner fails unless the caller holds the owner role.
func RequireOwner(ctx context.Context) (Principal, error) {
	p, err := Caller(ctx)
	if err != nil {
		return Principal{}, err
	}
	if p.Role != RoleOwner {
		return Principal{}, fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, p.ID)
	}
	return p, nil
}
