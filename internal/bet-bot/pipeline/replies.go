package pipeline

import (
	"fmt"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
)

const (
	usageHint      = "Please try again with something like:\n`bet 50 on India for Friday's match`"
	tryAgainLater  = " The service is temporarily unavailable, please try again later."
	eventsLoadFail = "❌ Couldn't load the open events right now." + tryAgainLater
)

// Reply é a mensagem única enviada ao usuário para cada categoria
func (e *Error) Reply() string {
	var msg string
	switch e.Kind {
	case IntentUnparseable:
		msg = "❌ I couldn't understand your bet. " + usageHint
	case EventNotFound:
		if e.Upstream {
			return eventsLoadFail
		}
		msg = fmt.Sprintf("❌ No open event matches *%s*. Try `show open events`.", e.Query)
	case InsufficientCredits:
		msg = fmt.Sprintf("❌ Insufficient credits: you have %d, tried to bet %d.", e.Credits, e.Amount)
	case DeductionFailed:
		msg = "❌ Couldn't deduct your credits, no bet was placed."
	case BetInsertFailed:
		if e.Compensated {
			msg = fmt.Sprintf("❌ Couldn't record your bet. Your credits have been restored (balance: %d).", e.Credits)
		} else {
			msg = "❌ Couldn't record your bet and restoring your credits failed. An operator has been notified."
		}
	default:
		msg = "❌ Something went wrong."
	}
	if e.Upstream {
		msg += tryAgainLater
	}
	return msg
}

// Confirmation é a resposta de sucesso com valor, opção e título do evento
func Confirmation(res Result) string {
	return fmt.Sprintf("✅ Bet placed: *%d* credits on *%s* for *%s*. Remaining balance: %d.",
		res.Bet.Amount, res.Bet.Option, res.Event.Title, res.Balance)
}

func balanceReply(u *ledger.User) string {
	return fmt.Sprintf("💰 <@%s>, you have *%d* credits.", u.ChatHandle, u.Credits)
}

func ackReply(handle string) string {
	return fmt.Sprintf("Got it, <@%s>! Let me parse that...", handle)
}
