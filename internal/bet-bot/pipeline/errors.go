package pipeline

import (
	"errors"
	"fmt"
)

// Kind é a categoria de falha visível ao usuário
type Kind string

const (
	IntentUnparseable   Kind = "intent_unparseable"
	EventNotFound       Kind = "event_not_found"
	InsufficientCredits Kind = "insufficient_credits"
	DeductionFailed     Kind = "deduction_failed"
	BetInsertFailed     Kind = "bet_insert_failed"
)

// Error encerra o pipeline no passo em que ocorreu.
// Upstream marca falhas transitórias do store/LLM já mapeadas para uma categoria.
type Error struct {
	Kind     Kind
	Upstream bool
	Err      error

	Query       string // EventNotFound
	Credits     int64  // saldo do usuário quando a falha ocorreu
	Amount      int64
	Compensated bool // BetInsertFailed: créditos devolvidos
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extrai a categoria de um erro do pipeline
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

func upstream(kind Kind, err error) *Error {
	return &Error{Kind: kind, Upstream: true, Err: err}
}
