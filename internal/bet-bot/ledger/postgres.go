package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implementa o ledger de créditos e apostas em banco Postgres
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do ledger Postgres
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Migrate cria as tabelas quando ainda não existem
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// Ping é usado pelo /healthz
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// GetUserByHandle busca o usuário pelo handle do chat
func (p *Postgres) GetUserByHandle(ctx context.Context, handle string) (*User, error) {
	var u User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, chat_handle, display_name, credits, created_at FROM users WHERE chat_handle=$1`, handle,
	).Scan(&u.ID, &u.ChatHandle, &u.DisplayName, &u.Credits, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, chat_handle, display_name, credits, created_at FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.ChatHandle, &u.DisplayName, &u.Credits, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser insere o usuário se o handle ainda não existir e devolve o registro atual.
// ON CONFLICT na constraint unique de chat_handle garante no máximo um usuário por handle,
// mesmo com menções concorrentes. O crédito inicial entra no credit_ledger só na inserção.
func (p *Postgres) CreateUser(ctx context.Context, handle, displayName string, credits int64) (*User, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var u User
	var inserted bool
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (id, chat_handle, display_name, credits)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (chat_handle) DO UPDATE SET chat_handle = EXCLUDED.chat_handle
		RETURNING id, chat_handle, display_name, credits, created_at, (xmax = 0)`,
		uuid.NewString(), handle, displayName, credits,
	).Scan(&u.ID, &u.ChatHandle, &u.DisplayName, &u.Credits, &u.CreatedAt, &inserted)
	if err != nil {
		return nil, err
	}

	if inserted {
		if _, err = tx.ExecContext(ctx, `INSERT INTO credit_ledger(user_id, operation_type, amount, description) VALUES($1,'GRANT',$2,$3)`,
			u.ID, credits, "initial credits"); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListEvents retorna os eventos que satisfazem o filtro, na ordem de criação
func (p *Postgres) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	q := `SELECT id, title, options, status FROM events`
	var args []any
	if strings.TrimSpace(filter.Status) != "" {
		if filter.Match == MatchContains {
			// strpos em vez de LIKE: '%' e '_' no status são literais, como em strings.Contains
			q += ` WHERE strpos(lower(trim(status)), lower(trim($1))) > 0`
		} else {
			q += ` WHERE lower(trim(status)) = lower(trim($1))`
		}
		args = append(args, filter.Status)
	}
	q += ` ORDER BY created_at, id`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Title, pq.Array(&e.Options), &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateCredits grava o novo saldo só se o saldo atual ainda for expected (compare-and-swap)
func (p *Postgres) UpdateCredits(ctx context.Context, userID string, expected, newBalance int64) (bool, error) {
	if newBalance < 0 {
		return false, ErrInsufficientCredits
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credits=$3, version = version + 1, updated_at=NOW() WHERE id=$1 AND credits=$2`,
		userID, expected, newBalance)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO credit_ledger(user_id, operation_type, amount, description) VALUES($1,'ADJUST',$2,$3)`,
		userID, newBalance-expected, "credits update"); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// InsertBet grava a aposta; gera o id quando vazio
func (p *Postgres) InsertBet(ctx context.Context, b *Bet) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return p.db.QueryRowContext(ctx, `
		INSERT INTO bets (id, user_id, event_id, amount, selection)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		b.ID, b.UserID, b.EventID, b.Amount, b.Option,
	).Scan(&b.CreatedAt)
}

// PlaceBet debita o saldo e grava a aposta na mesma transação.
// O débito condicional (credits >= amount) dispensa lock explícito e nunca deixa saldo negativo.
func (p *Postgres) PlaceBet(ctx context.Context, b *Bet) (int64, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE users SET credits = credits - $1, version = version + 1, updated_at=NOW()
		WHERE id=$2 AND credits >= $1
		RETURNING credits`, b.Amount, b.UserID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, b.UserID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, err
	}

	if err = tx.QueryRowContext(ctx, `
		INSERT INTO bets (id, user_id, event_id, amount, selection)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		b.ID, b.UserID, b.EventID, b.Amount, b.Option,
	).Scan(&b.CreatedAt); err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO credit_ledger(user_id, operation_type, amount, description, related_bet_id)
		VALUES($1,'DEBIT',$2,$3,$4)`, b.UserID, -b.Amount, "bet:"+b.EventID, b.ID); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}
