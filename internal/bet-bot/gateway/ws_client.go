package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/pkg/contracts/events"
)

// WSClient conecta no chat gateway, recebe frames "mention" e responde com frames "say".
// Reconecta com backoff quando a conexão cai.
type WSClient struct {
	URL        string
	Log        *zap.Logger
	Dispatcher *Dispatcher
	Backoff    time.Duration

	OnConnected func(bool)
}

func (c *WSClient) Start(ctx context.Context) {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	for {
		if ctx.Err() != nil {
			c.Log.Info("context canceled, stopping WS client")
			return
		}
		if err := c.connectAndListen(ctx); err != nil {
			c.Log.Warn("gateway connection closed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
	}
}

func (c *WSClient) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.connected(true)
	defer c.connected(false)
	c.Log.Info("connected to chat gateway", zap.String("url", c.URL))

	// ReadMessage não observa ctx; fechar a conexão desbloqueia o loop
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// gorilla permite um único writer concorrente
	var writeMu sync.Mutex
	send := func(_ context.Context, r events.Reply) error {
		b, err := json.Marshal(SayFrame{Type: FrameSay, Reply: r})
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var frame MentionFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.Log.Warn("invalid gateway frame", zap.Error(err))
			continue
		}
		if frame.Type != FrameMention {
			c.Log.Debug("ignoring gateway frame", zap.String("type", frame.Type))
			continue
		}
		if frame.SenderHandle == "" {
			c.Log.Warn("mention without sender", zap.String("mention_id", frame.ID))
			continue
		}
		c.Dispatcher.Dispatch(ctx, frame.Mention, send)
	}
}

func (c *WSClient) connected(up bool) {
	if c.OnConnected != nil {
		c.OnConnected(up)
	}
}
