package events

import "time"

// Mention é a menção ao bot entregue pelo chat gateway (WS ou tópico "chat_mentions").
type Mention struct {
	ID           string    `json:"id"` // id da entrega no gateway, usado para dedupe
	Channel      string    `json:"channel"`
	SenderHandle string    `json:"sender_handle"`
	SenderName   string    `json:"sender_name,omitempty"`
	Text         string    `json:"text"`
	SentAt       time.Time `json:"sent_at"`
}

// Reply é a resposta do bot (say) devolvida ao gateway.
type Reply struct {
	ReplyTo string `json:"reply_to"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}
