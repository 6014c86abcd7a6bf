package ledger

import (
	"strings"
	"time"
)

// DefaultCredits é o saldo inicial de um usuário criado na primeira interação
const DefaultCredits int64 = 100

// User é o titular de créditos, identificado pelo handle do chat.
type User struct {
	ID          string
	ChatHandle  string
	DisplayName string
	Credits     int64
	CreatedAt   time.Time
}

// Event é somente leitura para o bot; quem abre/fecha eventos é outro processo.
type Event struct {
	ID      string
	Title   string
	Options []string
	Status  string // "open" | "closed"
}

// Bet é imutável depois de gravada.
type Bet struct {
	ID        string
	UserID    string
	EventID   string
	Amount    int64
	Option    string
	CreatedAt time.Time
}

// MatchMode define como o status do evento é comparado no filtro
type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
)

// ParseMatchMode aceita "exact" ou "contains"; qualquer outro valor cai em exact
func ParseMatchMode(s string) MatchMode {
	if MatchMode(strings.ToLower(strings.TrimSpace(s))) == MatchContains {
		return MatchContains
	}
	return MatchExact
}

// EventFilter é o predicado de status aplicado pelo store em ListEvents.
// Status vazio não filtra nada.
type EventFilter struct {
	Status string
	Match  MatchMode
}

// OpenFilter monta o predicado de eventos abertos
func OpenFilter(status string, mode MatchMode) EventFilter {
	return EventFilter{Status: status, Match: mode}
}

// Matches aplica o predicado em memória (case-insensitive, sem espaços nas pontas)
func (f EventFilter) Matches(status string) bool {
	want := strings.ToLower(strings.TrimSpace(f.Status))
	if want == "" {
		return true
	}
	got := strings.ToLower(strings.TrimSpace(status))
	if f.Match == MatchContains {
		return strings.Contains(got, want)
	}
	return got == want
}

// Key identifica o filtro (chave de cache)
func (f EventFilter) Key() string {
	mode := f.Match
	if mode == "" {
		mode = MatchExact
	}
	return string(mode) + ":" + strings.ToLower(strings.TrimSpace(f.Status))
}
