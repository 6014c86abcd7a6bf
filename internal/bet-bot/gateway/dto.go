package gateway

import (
	"errors"

	"github.com/radieske/chat-bet-bot/pkg/contracts/events"
)

var errNoSender = errors.New("mention without sender_handle")

const (
	FrameMention = "mention"
	FrameSay     = "say"
)

// Frames trocados com o gateway por WebSocket
type MentionFrame struct {
	Type string `json:"type"`
	events.Mention
}

type SayFrame struct {
	Type string `json:"type"`
	events.Reply
}
