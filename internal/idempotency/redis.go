package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "idempotency:contribute"

// RedisCache shares cached responses between processes. Entries expire
// through Redis TTLs; capacity is left to the server's eviction policy.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	body, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("idempotency cache read failed")
		}
		return nil, false
	}
	return body, true
}

func (c *RedisCache) Put(ctx context.Context, key Key, body []byte) {
	if err := c.client.Set(ctx, redisKey(key), body, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("idempotency cache write failed")
	}
}

// redisKey hashes the session and client key so neither is stored in the
// clear and a ':' inside either cannot collide with another pair.
func redisKey(key Key) string {
	h := sha256.New()
	h.Write([]byte(key.SessionID))
	h.Write([]byte{0})
	h.Write([]byte(key.ClientKey))
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, key.ItemID, hex.EncodeToString(h.Sum(nil)))
}
