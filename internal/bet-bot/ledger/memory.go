package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory é um ledger em memória para ambiente local.
// Não tem transações: o pipeline usa compare-and-swap + compensação com ele.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*User // id -> user
	byHandle map[string]string
	events   []Event
	bets     []Bet
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*User),
		byHandle: make(map[string]string),
		now:      time.Now,
	}
}

// AddEvent registra um evento; a ordem de inserção é a ordem de ListEvents
func (m *Memory) AddEvent(e Event) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = "open"
	}
	e.Options = append([]string(nil), e.Options...)
	m.events = append(m.events, e)
	return e
}

// SetEventStatus simula o fechamento/reabertura de um evento por processo externo
func (m *Memory) SetEventStatus(id, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Status = status
			return true
		}
	}
	return false
}

func (m *Memory) GetUserByHandle(_ context.Context, handle string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHandle[handle]
	if !ok {
		return nil, ErrNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *Memory) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) CreateUser(_ context.Context, handle, displayName string, credits int64) (*User, error) {
	if credits < 0 {
		return nil, fmt.Errorf("create user %q: negative credits", handle)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byHandle[handle]; ok {
		u := *m.users[id]
		return &u, nil
	}
	u := &User{
		ID:          uuid.NewString(),
		ChatHandle:  handle,
		DisplayName: displayName,
		Credits:     credits,
		CreatedAt:   m.now(),
	}
	m.users[u.ID] = u
	m.byHandle[handle] = u.ID
	out := *u
	return &out, nil
}

func (m *Memory) ListEvents(_ context.Context, filter EventFilter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if filter.Matches(e.Status) {
			e.Options = append([]string(nil), e.Options...)
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) UpdateCredits(_ context.Context, userID string, expected, newBalance int64) (bool, error) {
	if newBalance < 0 {
		return false, ErrInsufficientCredits
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, ErrNotFound
	}
	if u.Credits != expected {
		return false, nil
	}
	u.Credits = newBalance
	return true, nil
}

func (m *Memory) InsertBet(_ context.Context, b *Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[b.UserID]; !ok {
		return fmt.Errorf("insert bet: user %s: %w", b.UserID, ErrNotFound)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = m.now()
	m.bets = append(m.bets, *b)
	return nil
}

// Bets devolve uma cópia das apostas gravadas
func (m *Memory) Bets() []Bet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Bet(nil), m.bets...)
}

// UserCount conta os usuários criados
func (m *Memory) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
