package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("test redis unreachable, skipping: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	client.FlushDB(context.Background())
	return client
}

func TestLimiter_IPWindow(t *testing.T) {
	client := setupRedis(t)
	l := NewLimiter(client, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if exceeded {
			t.Fatalf("request %d reported over the limit", i+1)
		}
		if err := l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "login"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
	if err != nil || !exceeded {
		t.Errorf("Check() after limit = %v, %v; want true", exceeded, err)
	}

	exceeded, _ = l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "register")
	if exceeded {
		t.Error("purposes share a counter")
	}

	ttl := client.TTL(ctx, ipKey("10.0.0.1", "login")).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("window ttl = %v", ttl)
	}
}
