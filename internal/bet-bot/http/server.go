package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/pipeline"
)

// UserReader lê usuários sem criá-los
type UserReader interface {
	GetUserByHandle(ctx context.Context, handle string) (*ledger.User, error)
}

// API expõe o bot por HTTP: menções síncronas e consultas de eventos/saldo
type API struct {
	Bot   *pipeline.Bot
	Users UserReader
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/v1/mentions", a.postMention)  // processa uma menção e devolve as respostas
	r.Get("/v1/events/open", a.listOpen)   // eventos abertos
	r.Get("/v1/users/{handle}", a.getUser) // saldo do usuário
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) postMention(w http.ResponseWriter, r *http.Request) {
	var req MentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.SenderHandle = strings.TrimSpace(req.SenderHandle)
	if req.SenderHandle == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "sender_handle and text are required")
		return
	}

	resp := MentionResponse{Replies: []string{}}
	a.Bot.HandleMention(r.Context(), pipeline.Mention{
		Handle:      req.SenderHandle,
		DisplayName: req.SenderName,
		Text:        req.Text,
	}, func(s string) { resp.Replies = append(resp.Replies, s) })
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listOpen(w http.ResponseWriter, r *http.Request) {
	list, err := a.Bot.Pipeline().OpenEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "events unavailable")
		return
	}
	out := make([]EventResponse, 0, len(list))
	for _, e := range list {
		out = append(out, EventResponse{ID: e.ID, Title: e.Title, Options: e.Options, Status: e.Status})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	u, err := a.Users.GetUserByHandle(r.Context(), handle)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{
		ID:          u.ID,
		ChatHandle:  u.ChatHandle,
		DisplayName: u.DisplayName,
		Credits:     u.Credits,
		CreatedAt:   u.CreatedAt,
	})
}
