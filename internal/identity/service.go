package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/prizepool/internal/access"
)

const minSecretLength = 8

var (
	// ErrInvalidCredentials hides whether the name or the secret was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakSecret is returned when a secret is too short.
	ErrWeakSecret = fmt.Errorf("secret must be at least %d characters", minSecretLength)
	// ErrInvalidName is returned for names that cannot be ledger accounts.
	ErrInvalidName = errors.New("name must be 3-64 characters of letters, digits, '-', '_' or '.'")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,64}$`)

// Service manages operator lifecycle.
type Service struct {
	repo Repository
	// reserved names are ledger accounts owned by the system, such as the
	// pool and the yield source.
	reserved map[string]struct{}
}

// NewService creates a new identity service. Reserved names cannot be
// registered.
func NewService(repo Repository, reserved ...string) *Service {
	r := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		r[name] = struct{}{}
	}
	return &Service{repo: repo, reserved: r}
}

// Register creates a holder operator and stores a hashed secret.
func (s *Service) Register(ctx context.Context, creds Credentials) (Operator, error) {
	if _, taken := s.reserved[creds.Name]; taken {
		return Operator{}, fmt.Errorf("%w: %s", ErrExists, creds.Name)
	}
	return s.create(ctx, creds, access.RoleHolder)
}

func (s *Service) create(ctx context.Context, creds Credentials, role access.Role) (Operator, error) {
	if !namePattern.MatchString(creds.Name) {
		return Operator{}, ErrInvalidName
	}
	if len(creds.Secret) < minSecretLength {
		return Operator{}, ErrWeakSecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Secret), bcrypt.DefaultCost)
	if err != nil {
		return Operator{}, err
	}
	op := Operator{
		ID:         uuid.New().String(),
		Name:       creds.Name,
		Role:       role,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, op); err != nil {
		return Operator{}, err
	}
	return op, nil
}

// EnsureOwner creates the owner operator unless it already exists.
func (s *Service) EnsureOwner(ctx context.Context, creds Credentials, logger *slog.Logger) error {
	if _, err := s.repo.FindByName(ctx, creds.Name); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.create(ctx, creds, access.RoleOwner); err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}
	logger.Info("owner operator created", slog.String("name", creds.Name))
	return nil
}

// Authenticate verifies credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Operator, error) {
	op, err := s.repo.FindByName(ctx, creds.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Operator{}, ErrInvalidCredentials
		}
		return Operator{}, err
	}
	if err := bcrypt.CompareHashAndPassword(op.SecretHash, []byte(creds.Secret)); err != nil {
		return Operator{}, ErrInvalidCredentials
	}
	return op, nil
}
