package gateway

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper usa SETNX com TTL por id de menção
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) MarkSeen(ctx context.Context, mentionID string) (bool, error) {
	return d.rdb.SetNX(ctx, "mention:seen:"+mentionID, 1, d.ttl).Result()
}
