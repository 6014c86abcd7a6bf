package events

import (
	"fmt"
	"strings"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
)

const NoOpenEvents = "No open events right now."

// FormatOpen monta uma linha numerada por evento com as opções separadas por vírgula
func FormatOpen(events []ledger.Event) string {
	if len(events) == 0 {
		return NoOpenEvents
	}
	lines := make([]string, 0, len(events))
	for i, e := range events {
		lines = append(lines, fmt.Sprintf("%d. %s — Options: %s", i+1, e.Title, strings.Join(e.Options, ", ")))
	}
	return strings.Join(lines, "\n")
}
