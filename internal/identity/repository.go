package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/prizepool/internal/access"
)

var (
	// ErrNotFound is returned when no operator matches.
	ErrNotFound = errors.New("operator not found")
	// ErrExists is returned when registering a taken name.
	ErrExists = errors.New("operator exists")
)

// Repository persists operators.
type Repository interface {
	Create(ctx context.Context, op Operator) error
	FindByName(ctx context.Context, name string) (Operator, error)
	FindByID(ctx context.Context, id string) (Operator, error)
	UpdateTokenVersion(ctx context.Context, id string, version int) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed operator repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const operatorColumns = `id, name, role, secret_hash, token_version, created_at`

// Create inserts a new operator.
func (r *PostgresRepository) Create(ctx context.Context, op Operator) error {
	id, err := uuid.Parse(op.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO operators (`+operatorColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6)`, id, op.Name, string(op.Role), op.SecretHash, op.TokenVersion, op.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrExists, op.Name)
	}
	return err
}

// FindByName fetches an operator by name.
func (r *PostgresRepository) FindByName(ctx context.Context, name string) (Operator, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operators WHERE name = $1`, name))
}

// FindByID fetches an operator by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Operator, error) {
	opID, err := uuid.Parse(id)
	if err != nil {
		return Operator{}, ErrNotFound
	}
	return r.scan(r.db.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = $1`, opID))
}

func (r *PostgresRepository) scan(row pgx.Row) (Operator, error) {
	var (
		id        uuid.UUID
		role      string
		createdAt time.Time
		op        Operator
	)
	if err := row.Scan(&id, &op.Name, &role, &op.SecretHash, &op.TokenVersion, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, ErrNotFound
		}
		return Operator{}, err
	}
	op.ID = id.String()
	op.Role = access.Role(role)
	op.CreatedAt = createdAt.UTC()
	return op, nil
}

// UpdateTokenVersion stores a new token version, invalidating older tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	opID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE operators SET token_version = $1 WHERE id = $2`, version, opID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
