package intent

import "strings"

// BetRequest é a intenção de aposta antes de ser resolvida contra o ledger.
type BetRequest struct {
	Amount     int64
	Option     string
	EventQuery string
}

// Valid exige os três campos e amount positivo
func (r BetRequest) Valid() bool {
	return r.Amount > 0 && strings.TrimSpace(r.Option) != "" && strings.TrimSpace(r.EventQuery) != ""
}
