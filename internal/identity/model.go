package identity

import (
	"time"

	"github.com/congo-pay/prizepool/internal/access"
)

// Operator is an API caller. Name doubles as the operator's ledger account.
type Operator struct {
	ID           string
	Name         string
	Role         access.Role
	SecretHash   []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Principal is the access identity the operator acts as.
func (o Operator) Principal() access.Principal {
	return access.Principal{ID: o.Name, Role: o.Role}
}

// Credentials request structure.
type Credentials struct {
	Name   string
	Secret string
}
