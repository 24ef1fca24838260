package localcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultGuestTTL bounds how long an idle guest's entries are kept
const DefaultGuestTTL = 30 * 24 * time.Hour

// RedisStorage stores one guest's items in Redis, for clients without local disk.
// Every write refreshes the TTL.
type RedisStorage struct {
	client  *redis.Client
	guestID string
	ttl     time.Duration
}

func NewRedisStorage(client *redis.Client, guestID string, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = DefaultGuestTTL
	}
	return &RedisStorage{client: client, guestID: guestID, ttl: ttl}
}

// guestKey generates the Redis key for a guest's item
func guestKey(guestID, key string) string {
	return fmt.Sprintf("guest:%s:%s", guestID, key)
}

func (s *RedisStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, guestKey(s.guestID, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get guest item: %w", err)
	}
	return val, true, nil
}

func (s *RedisStorage) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, guestKey(s.guestID, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set guest item: %w", err)
	}
	return nil
}
