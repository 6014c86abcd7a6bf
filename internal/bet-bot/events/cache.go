package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
)

// CachedLister guarda a lista de eventos por filtro no Redis com TTL curto.
// Falhas do Redis não bloqueiam a leitura: cai direto no store.
type CachedLister struct {
	next Lister
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

func NewCachedLister(next Lister, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedLister {
	return &CachedLister{next: next, rdb: rdb, ttl: ttl, log: log}
}

func key(f ledger.EventFilter) string { return "events:list:" + f.Key() }

type cachedEvent struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Options []string `json:"options"`
	Status  string   `json:"status"`
}

func (c *CachedLister) ListEvents(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	b, err := c.rdb.Get(ctx, key(filter)).Bytes()
	switch {
	case err == nil:
		var cached []cachedEvent
		if jerr := json.Unmarshal(b, &cached); jerr == nil {
			out := make([]ledger.Event, len(cached))
			for i, e := range cached {
				out[i] = ledger.Event{ID: e.ID, Title: e.Title, Options: e.Options, Status: e.Status}
			}
			return out, nil
		}
		c.log.Warn("events cache entry corrupted", zap.String("key", key(filter)))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("events cache get failed", zap.Error(err))
	}

	evs, err := c.next.ListEvents(ctx, filter)
	if err != nil {
		return nil, err
	}

	cached := make([]cachedEvent, len(evs))
	for i, e := range evs {
		cached[i] = cachedEvent{ID: e.ID, Title: e.Title, Options: e.Options, Status: e.Status}
	}
	payload, _ := json.Marshal(cached)
	if err := c.rdb.Set(ctx, key(filter), payload, c.ttl).Err(); err != nil {
		c.log.Warn("events cache set failed", zap.Error(err))
	}
	return evs, nil
}
