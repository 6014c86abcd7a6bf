package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/gateway"
	"github.com/radieske/chat-bet-bot/pkg/contracts/events"
)

const maxReplies = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Representa um bot conectado via WebSocket
type clientConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // um writer por conexão
}

// Hub simula o chat gateway: entrega menções aos bots conectados e guarda as respostas
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*clientConn
	log     *zap.Logger

	repliesMu sync.Mutex
	replies   []events.Reply

	OnConnections func(n int)
	OnSent        func()
	OnReply       func()
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{clients: make(map[string]*clientConn), log: log}
}

func (h *Hub) add(c *clientConn) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.reportConnections(n)
	h.log.Info("bot connected", zap.String("client_id", c.id))
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.reportConnections(n)
		h.log.Info("bot disconnected", zap.String("client_id", id))
	}
}

// Broadcast envia a menção para todos os bots; retorna quantos receberam
func (h *Hub) Broadcast(m events.Mention) int {
	msg, _ := json.Marshal(gateway.MentionFrame{Type: gateway.FrameMention, Mention: m})
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for id, c := range h.clients {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", id), zap.Error(err))
			_ = c.conn.Close()
			continue
		}
		sent++
		if h.OnSent != nil {
			h.OnSent()
		}
	}
	return sent
}

// Replies devolve as últimas respostas recebidas, da mais antiga para a mais nova
func (h *Hub) Replies() []events.Reply {
	h.repliesMu.Lock()
	defer h.repliesMu.Unlock()
	return append([]events.Reply(nil), h.replies...)
}

func (h *Hub) record(r events.Reply) {
	h.repliesMu.Lock()
	h.replies = append(h.replies, r)
	if len(h.replies) > maxReplies {
		h.replies = h.replies[len(h.replies)-maxReplies:]
	}
	h.repliesMu.Unlock()
	if h.OnReply != nil {
		h.OnReply()
	}
	h.log.Info("bot reply", zap.String("reply_to", r.ReplyTo), zap.String("channel", r.Channel), zap.String("text", r.Text))
}

// ServeWS aceita a conexão do bot e lê os frames "say"
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c := &clientConn{id: uuid.NewString(), conn: conn}
	h.add(c)

	go func() {
		defer func() {
			h.remove(c.id)
			_ = conn.Close()
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame gateway.SayFrame
			if err := json.Unmarshal(msg, &frame); err != nil || frame.Type != gateway.FrameSay {
				h.log.Debug("ignoring bot frame")
				continue
			}
			h.record(frame.Reply)
		}
	}()
}

// MentionRequest é o corpo de POST /mentions
type MentionRequest struct {
	Channel      string `json:"channel"`
	SenderHandle string `json:"sender_handle"`
	SenderName   string `json:"sender_name"`
	Text         string `json:"text"`
}

// ServeMention publica uma menção; o prefixo <@BOT> é adicionado como no chat real
func (h *Hub) ServeMention(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req MentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SenderHandle) == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Channel == "" {
		req.Channel = "general"
	}
	m := events.Mention{
		ID:           uuid.NewString(),
		Channel:      req.Channel,
		SenderHandle: req.SenderHandle,
		SenderName:   req.SenderName,
		Text:         fmt.Sprintf("<@BOT> %s", req.Text),
		SentAt:       time.Now().UTC(),
	}
	delivered := h.Broadcast(m)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": m.ID, "delivered": delivered})
}

func (h *Hub) ServeReplies(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Replies())
}

func (h *Hub) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("POST /mentions", h.ServeMention)
	mux.HandleFunc("GET /replies", h.ServeReplies)
	return mux
}

func (h *Hub) reportConnections(n int) {
	if h.OnConnections != nil {
		h.OnConnections(n)
	}
}
