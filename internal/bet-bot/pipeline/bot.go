package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/events"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/intent"
)

// Bot roteia cada menção para listagem, saldo ou aposta e responde via say
type Bot struct {
	pipeline *Pipeline
	log      *zap.Logger

	OnIntent func(intent string) // "list_events" | "balance" | "bet"
}

func NewBot(p *Pipeline, log *zap.Logger) *Bot {
	return &Bot{pipeline: p, log: log}
}

// Pipeline expõe o pipeline para a API HTTP
func (b *Bot) Pipeline() *Pipeline { return b.pipeline }

// HandleMention processa uma menção do chat. Cada menção gera exatamente uma
// resposta final (mais o aviso opcional antes do fallback para o modelo).
func (b *Bot) HandleMention(ctx context.Context, m Mention, say func(string)) {
	m.Text = intent.StripMention(m.Text)

	switch {
	case intent.IsListOpenEvents(m.Text):
		b.report("list_events")
		say(b.listOpen(ctx))
	case intent.IsBalance(m.Text):
		b.report("balance")
		say(b.balance(ctx, m))
	default:
		b.report("bet")
		res, err := b.pipeline.Run(ctx, m, func() { say(ackReply(m.Handle)) })
		say(ReplyFor(res, err))
	}
}

// ReplyFor converte o resultado do pipeline na mensagem do usuário
func ReplyFor(res Result, err error) string {
	if err == nil {
		return Confirmation(res)
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reply()
	}
	return (&Error{Kind: DeductionFailed, Upstream: true, Err: err}).Reply()
}

func (b *Bot) listOpen(ctx context.Context) string {
	list, err := b.pipeline.OpenEvents(ctx)
	if err != nil {
		b.log.Warn("list open events failed", zap.Error(err))
		return eventsLoadFail
	}
	return events.FormatOpen(list)
}

func (b *Bot) balance(ctx context.Context, m Mention) string {
	u, err := b.pipeline.ResolveUser(ctx, m.Handle, m.DisplayName)
	if err != nil {
		b.log.Warn("balance lookup failed", zap.String("handle", m.Handle), zap.Error(err))
		return "❌ Couldn't load your balance." + tryAgainLater
	}
	return balanceReply(u)
}

func (b *Bot) report(kind string) {
	if b.OnIntent != nil {
		b.OnIntent(kind)
	}
}
