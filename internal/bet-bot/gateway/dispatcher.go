package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/pipeline"
	"github.com/radieske/chat-bet-bot/pkg/contracts/events"
)

// MentionHandler é implementado por pipeline.Bot
type MentionHandler interface {
	HandleMention(ctx context.Context, m pipeline.Mention, say func(string))
}

// Deduper marca entregas já vistas; first=false indica reentrega
type Deduper interface {
	MarkSeen(ctx context.Context, mentionID string) (first bool, err error)
}

// SendFunc devolve uma resposta ao gateway de origem
type SendFunc func(ctx context.Context, r events.Reply) error

// Dispatcher processa cada menção numa goroutine própria, limitada por um pool de workers
type Dispatcher struct {
	handler MentionHandler
	dedupe  Deduper
	log     *zap.Logger
	sem     chan struct{}
	wg      sync.WaitGroup

	OnMention   func()
	OnDuplicate func()
	OnError     func(stage string)
}

func NewDispatcher(h MentionHandler, dedupe Deduper, workers int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{handler: h, dedupe: dedupe, log: log, sem: make(chan struct{}, workers)}
}

// Dispatch bloqueia só até haver worker livre (ou o ctx acabar)
func (d *Dispatcher) Dispatch(ctx context.Context, m events.Mention, send SendFunc) {
	if d.OnMention != nil {
		d.OnMention()
	}
	if m.ID != "" && d.dedupe != nil {
		first, err := d.dedupe.MarkSeen(ctx, m.ID)
		if err != nil {
			// sem Redis seguimos processando
			d.log.Warn("mention dedupe failed", zap.String("mention_id", m.ID), zap.Error(err))
			d.reportError("dedupe")
		} else if !first {
			d.log.Info("duplicate mention ignored", zap.String("mention_id", m.ID))
			if d.OnDuplicate != nil {
				d.OnDuplicate()
			}
			return
		}
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	d.wg.Add(1)
	go func() {
		defer func() {
			<-d.sem
			d.wg.Done()
		}()
		d.handle(ctx, m, send)
	}()
}

func (d *Dispatcher) handle(ctx context.Context, m events.Mention, send SendFunc) {
	say := func(text string) {
		r := events.Reply{ReplyTo: m.ID, Channel: m.Channel, Text: text}
		// a resposta sai mesmo se o ctx do loop já foi cancelado no shutdown
		if err := send(context.WithoutCancel(ctx), r); err != nil {
			d.log.Warn("send reply failed", zap.String("mention_id", m.ID), zap.Error(err))
			d.reportError("send")
		}
	}
	d.handler.HandleMention(ctx, pipeline.Mention{
		Handle:      m.SenderHandle,
		DisplayName: m.SenderName,
		Text:        m.Text,
	}, say)
}

// Wait aguarda as menções em andamento
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) reportError(stage string) {
	if d.OnError != nil {
		d.OnError(stage)
	}
}
