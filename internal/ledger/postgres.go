package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists token balances in PostgreSQL. Every movement also
// appends a row to ledger_entries so balances can be audited.
type PostgresLedger struct {
	hookSet
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// RegisterToken creates the token row or refreshes its controllers.
func (l *PostgresLedger) RegisterToken(ctx context.Context, token Token) error {
	if token.ID == "" {
		return fmt.Errorf("token id is required")
	}
	controllers := token.Controllers
	if controllers == nil {
		controllers = []string{}
	}
	_, err := l.db.Exec(ctx, `INSERT INTO ledger_tokens (id, controllers, supply) VALUES ($1, $2, 0)
        ON CONFLICT (id) DO UPDATE SET controllers = EXCLUDED.controllers`, token.ID, controllers)
	return err
}

// BalanceOf returns the balance of holder, zero when no row exists.
func (l *PostgresLedger) BalanceOf(ctx context.Context, token, holder string) (*big.Int, error) {
	if err := l.ensureToken(ctx, l.db, token); err != nil {
		return nil, err
	}
	return scanAmount(l.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT amount::text FROM ledger_balances WHERE token = $1 AND holder = $2), '0')`, token, holder))
}

// TotalSupply returns the tracked supply of token.
func (l *PostgresLedger) TotalSupply(ctx context.Context, token string) (*big.Int, error) {
	v, err := scanAmount(l.db.QueryRow(ctx, `SELECT supply::text FROM ledger_tokens WHERE id = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return v, err
}

// Holders lists every holder with a positive balance, ordered by id.
func (l *PostgresLedger) Holders(ctx context.Context, token string) ([]Holding, error) {
	if err := l.ensureToken(ctx, l.db, token); err != nil {
		return nil, err
	}
	rows, err := l.db.Query(ctx, `SELECT holder, amount::text FROM ledger_balances
        WHERE token = $1 AND amount > 0 ORDER BY holder`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holding
	for rows.Next() {
		var holder, raw string
		if err := rows.Scan(&holder, &raw); err != nil {
			return nil, err
		}
		bal, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Holding{Holder: holder, Balance: bal})
	}
	return out, rows.Err()
}

// Allowance returns how much spender may still move on behalf of owner.
func (l *PostgresLedger) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	return scanAmount(l.db.QueryRow(ctx, `SELECT COALESCE((SELECT amount::text FROM ledger_allowances
        WHERE token = $1 AND owner = $2 AND spender = $3), '0')`, token, owner, spender))
}

// Approve overwrites the allowance of spender over owner's balance.
func (l *PostgresLedger) Approve(ctx context.Context, token, owner, spender string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := l.ensureToken(ctx, l.db, token); err != nil {
		return err
	}
	_, err := l.db.Exec(ctx, `INSERT INTO ledger_allowances (token, owner, spender, amount) VALUES ($1, $2, $3, $4::numeric)
        ON CONFLICT (token, owner, spender) DO UPDATE SET amount = EXCLUDED.amount`, token, owner, spender, amount.String())
	return err
}

func (l *PostgresLedger) Transfer(ctx context.Context, token, from, to string, amount *big.Int) error {
	return l.move(ctx, token, from, to, amount, movement{})
}

func (l *PostgresLedger) TransferFrom(ctx context.Context, token, spender, from, to string, amount *big.Int) error {
	return l.move(ctx, token, from, to, amount, movement{spender: spender})
}

func (l *PostgresLedger) ControllerMint(ctx context.Context, token, controller, to string, amount *big.Int) error {
	return l.move(ctx, token, "", to, amount, movement{controlled: true, controller: controller})
}

func (l *PostgresLedger) ControllerBurn(ctx context.Context, token, controller, from string, amount *big.Int) error {
	return l.move(ctx, token, from, "", amount, movement{controlled: true, controller: controller})
}

func (l *PostgresLedger) ControllerBurnFrom(ctx context.Context, token, controller, operator, from string, amount *big.Int) error {
	return l.move(ctx, token, from, "", amount, movement{controlled: true, controller: controller, spender: operator})
}

func (l *PostgresLedger) move(ctx context.Context, token, from, to string, amount *big.Int, m movement) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == "" && to == "" {
		return fmt.Errorf("mint and burn at once is not a movement")
	}
	if !m.controlled && (from == "" || to == "") {
		return fmt.Errorf("%w: transfers need both holders", ErrInvalidAmount)
	}

	// Validate once before the hook so a rejected movement has no side effects,
	// then again under row locks.
	if err := l.check(ctx, l.db, token, from, amount, m, false); err != nil {
		return err
	}
	if err := l.before(ctx, token, from, to, amount); err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := l.check(ctx, tx, token, from, amount, m, true); err != nil {
		return err
	}

	if m.needsAllowance(from) {
		if _, err := tx.Exec(ctx, `UPDATE ledger_allowances SET amount = amount - $4::numeric
            WHERE token = $1 AND owner = $2 AND spender = $3`, token, from, m.spender, amount.String()); err != nil {
			return err
		}
	}
	if from != "" {
		if _, err := tx.Exec(ctx, `UPDATE ledger_balances SET amount = amount - $3::numeric
            WHERE token = $1 AND holder = $2`, token, from, amount.String()); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE ledger_tokens SET supply = supply + $2::numeric WHERE id = $1`, token, amount.String()); err != nil {
			return err
		}
	}
	if to != "" {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_balances (token, holder, amount) VALUES ($1, $2, $3::numeric)
            ON CONFLICT (token, holder) DO UPDATE SET amount = ledger_balances.amount + EXCLUDED.amount`, token, to, amount.String()); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE ledger_tokens SET supply = supply - $2::numeric WHERE id = $1`, token, amount.String()); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, token, from_holder, to_holder, amount)
        VALUES ($1, $2, $3, $4, $5::numeric)`, uuid.New(), token, from, to, amount.String()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	l.after(ctx, token, from, to, amount)
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (l *PostgresLedger) check(ctx context.Context, q querier, token, from string, amount *big.Int, m movement, lock bool) error {
	suffix := ""
	if lock {
		suffix = " FOR UPDATE"
	}

	var controllers []string
	if err := q.QueryRow(ctx, `SELECT controllers FROM ledger_tokens WHERE id = $1`+suffix, token).Scan(&controllers); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUnknownToken, token)
		}
		return err
	}
	if m.controlled && !(Token{ID: token, Controllers: controllers}).controlledBy(m.controller) {
		return ErrNotController
	}

	if from != "" {
		bal, err := scanAmount(q.QueryRow(ctx, `SELECT COALESCE((SELECT amount::text FROM ledger_balances
            WHERE token = $1 AND holder = $2`+suffix+`), '0')`, token, from))
		if err != nil {
			return err
		}
		if bal.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
	}

	if m.needsAllowance(from) {
		allowed, err := scanAmount(q.QueryRow(ctx, `SELECT COALESCE((SELECT amount::text FROM ledger_allowances
            WHERE token = $1 AND owner = $2 AND spender = $3`+suffix+`), '0')`, token, from, m.spender))
		if err != nil {
			return err
		}
		if allowed.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
	}
	return nil
}

func (l *PostgresLedger) ensureToken(ctx context.Context, q querier, token string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_tokens WHERE id = $1)`, token).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return nil
}

func scanAmount(row pgx.Row) (*big.Int, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	return parseAmount(raw)
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", raw)
	}
	return v, nil
}
