package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coinflip/repository/testutil"
	"coinflip/service"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDeduplicator_TryClaim(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	rdb := testutil.SetupTestRedis(t)

	first := NewRedisDeduplicator(rdb, time.Hour)
	second := NewRedisDeduplicator(rdb, time.Hour)
	id := service.SettlementID("0xABC", 1700000100)

	assert.True(t, first.TryClaim(id))
	assert.False(t, first.TryClaim(id))
	// another process sharing the instance loses too
	assert.False(t, second.TryClaim(id))
	assert.True(t, second.TryClaim(service.SettlementID("0xabc", 1700000101)))
}

func TestRedisDeduplicator_ClaimsNeverExpire(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	rdb := testutil.SetupTestRedis(t)
	dedup := NewRedisDeduplicator(rdb, 0)
	id := service.SettlementID("0xABC", 1700000100)

	assert.True(t, dedup.TryClaim(id))

	ttl, err := rdb.TTL(context.Background(), redisClaimKeyPrefix+id).Result()
	require.NoError(t, err)
	// -1 means the key exists without an expiry
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestRedisDeduplicator_ConcurrentClaims(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	rdb := testutil.SetupTestRedis(t)
	dedup := NewRedisDeduplicator(rdb, time.Hour)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if dedup.TryClaim("0xfeed:0") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRedisDeduplicator_FallsBackWhenUnreachable(t *testing.T) {
	// nothing listens on this port
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	dedup := NewRedisDeduplicator(rdb, 0)
	assert.Zero(t, dedup.ttl)
	assert.True(t, dedup.TryClaim("0xfeed:1"))
	assert.False(t, dedup.TryClaim("0xfeed:1"))
}
