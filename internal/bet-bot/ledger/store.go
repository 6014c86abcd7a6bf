package ledger

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrStaleBalance        = errors.New("stale balance")
)

// Store é a fronteira com o ledger consumida pelo pipeline de apostas
type Store interface {
	// GetUserByHandle retorna ErrNotFound quando o handle ainda não existe
	GetUserByHandle(ctx context.Context, handle string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	// CreateUser é insert-if-absent: com o handle já existente devolve o registro atual
	CreateUser(ctx context.Context, handle, displayName string, credits int64) (*User, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	// UpdateCredits é compare-and-swap: só grava se o saldo atual for expected.
	// ok=false indica que nada foi alterado.
	UpdateCredits(ctx context.Context, userID string, expected, newBalance int64) (ok bool, err error)
	InsertBet(ctx context.Context, b *Bet) error
}

// AtomicPlacer é implementado por stores que debitam e gravam a aposta na mesma transação.
type AtomicPlacer interface {
	// PlaceBet debita b.Amount e insere a aposta atomicamente, retornando o novo saldo.
	// Retorna ErrInsufficientCredits sem alterar nada quando o saldo não cobre a aposta.
	PlaceBet(ctx context.Context, b *Bet) (newBalance int64, err error)
}
