package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	redisOnce sync.Once
	redisURL  string
	redisErr  error
)

// NewTestRedis connects to TEST_REDIS_URL, or to a Redis container started once
// per test binary, and flushes the database before returning.
func NewTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = startRedis(t)
	}

	opts, err := goredis.ParseURL(url)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("skipping Redis integration tests: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush redis: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	redisOnce.Do(func() {
		ctx := context.Background()
		ctr, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			redisErr = err
			return
		}
		redisURL, redisErr = ctr.ConnectionString(ctx)
	})
	if redisErr != nil {
		t.Skipf("skipping Redis integration tests: %v", redisErr)
	}
	return redisURL
}
