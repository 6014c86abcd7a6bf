package events

// Evento publicado no tópico "bet_placed" após uma aposta ser gravada no ledger.
type BetPlaced struct {
	BetID       string `json:"bet_id"`
	UserID      string `json:"user_id"`
	ChatHandle  string `json:"chat_handle"`
	EventID     string `json:"event_id"`
	EventTitle  string `json:"event_title"`
	Option      string `json:"option"`
	Amount      int64  `json:"amount"`
	BalanceLeft int64  `json:"balance_left"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
