package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	skafka "github.com/radieske/chat-bet-bot/internal/shared/kafka"
	"github.com/radieske/chat-bet-bot/pkg/contracts/events"
)

// KafkaConsumer lê menções do tópico chat_mentions e grava as respostas em chat_replies.
// Mensagens que não decodificam vão para o DLQ.
type KafkaConsumer struct {
	Log        *zap.Logger
	Reader     *kafka.Reader
	Replies    *kafka.Writer
	DLQ        *kafka.Writer
	Dispatcher *Dispatcher

	OnConsumed func()
	OnError    func(string)
}

func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.reportError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if c.OnConsumed != nil {
			c.OnConsumed()
		}

		mention, err := DecodeMention(m.Value)
		if err != nil {
			c.Log.Warn("invalid mention message", zap.Int64("offset", m.Offset), zap.Error(err))
			c.reportError("decode")
			c.deadLetter(ctx, m)
			continue
		}
		c.Dispatcher.Dispatch(ctx, mention, c.sendReply)
	}
}

func (c *KafkaConsumer) sendReply(ctx context.Context, r events.Reply) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return skafka.WriteJSON(ctx, c.Replies, r.Channel, b)
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, m kafka.Message) {
	if c.DLQ == nil {
		return
	}
	if err := skafka.WriteJSON(ctx, c.DLQ, string(m.Key), m.Value); err != nil {
		c.Log.Error("dlq write failed", zap.Error(err))
		c.reportError("dlq")
	}
}

func (c *KafkaConsumer) reportError(stage string) {
	if c.OnError != nil {
		c.OnError(stage)
	}
}

// DecodeMention valida o payload do tópico de menções
func DecodeMention(value []byte) (events.Mention, error) {
	var m events.Mention
	if err := json.Unmarshal(value, &m); err != nil {
		return m, fmt.Errorf("decode mention: %w", err)
	}
	if m.SenderHandle == "" {
		return m, errNoSender
	}
	return m, nil
}
