package events

import (
	"context"
	"strings"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
)

// Lister é o subconjunto do ledger usado para ler eventos
type Lister interface {
	ListEvents(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error)
}

// Resolver casa uma busca livre com o título dos eventos abertos
type Resolver struct {
	events Lister
	open   ledger.EventFilter
}

func NewResolver(events Lister, open ledger.EventFilter) *Resolver {
	return &Resolver{events: events, open: open}
}

// Open lista os eventos abertos na ordem do store
func (r *Resolver) Open(ctx context.Context) ([]ledger.Event, error) {
	return r.events.ListEvents(ctx, r.open)
}

// Resolve devolve o primeiro evento aberto cujo título contém a query (case-insensitive).
// found=false quando nada casa ou não há eventos abertos.
func (r *Resolver) Resolve(ctx context.Context, query string) (ledger.Event, bool, error) {
	open, err := r.Open(ctx)
	if err != nil {
		return ledger.Event{}, false, err
	}
	e, ok := Match(open, query)
	return e, ok, nil
}

// Match é a regra de casamento: substring case-insensitive, primeiro da lista vence
func Match(events []ledger.Event, query string) (ledger.Event, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ledger.Event{}, false
	}
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Title), q) {
			return e, true
		}
	}
	return ledger.Event{}, false
}
