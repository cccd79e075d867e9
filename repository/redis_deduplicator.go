package repository

import (
	"context"
	"fmt"
	"time"

	"coinflip/service"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var _ service.EventDeduplicator = (*RedisDeduplicator)(nil)

const (
	redisClaimTimeout   = 2 * time.Second
	redisClaimKeyPrefix = "coinflip:claim:"
)

// RedisDeduplicator claims event and settlement ids with SETNX so that
// several client processes of one player record each settlement once.
// When redis is unreachable it falls back to process-local claims.
type RedisDeduplicator struct {
	rdb      *redis.Client
	ttl      time.Duration
	fallback *service.MemoryDeduplicator
}

// NewRedisDeduplicator creates a deduplicator over rdb. Claims expire after
// ttl; a non-positive ttl keeps them forever, which is what settlement ids
// need since a bet can be resumed long after it was placed.
func NewRedisDeduplicator(rdb *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisDeduplicator{
		rdb:      rdb,
		ttl:      ttl,
		fallback: service.NewMemoryDeduplicator(),
	}
}

// NewRedisClient parses a redis:// URL and checks the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// TryClaim returns true for the first caller of id across every process
// sharing the redis instance
func (d *RedisDeduplicator) TryClaim(id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisClaimTimeout)
	defer cancel()

	ok, err := d.rdb.SetNX(ctx, redisClaimKeyPrefix+id, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		log.WithFields(log.Fields{
			"id":    id,
			"error": err,
		}).Warn("Redis claim failed, using local deduplication")
		return d.fallback.TryClaim(id)
	}
	if ok {
		// mirrored locally for the fallback path
		d.fallback.TryClaim(id)
		return true
	}
	return false
}
