//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisAddr returns the test redis server from VFD_TEST_REDIS_ADDR, or ""
// when none is configured.
func RedisAddr() string {
	return os.Getenv("VFD_TEST_REDIS_ADDR")
}

// Redis returns a client on an emptied database db of the test server,
// closed when the test ends. The test is skipped when no server is
// configured or it does not answer.
func Redis(t *testing.T, db int) *redis.Client {
	t.Helper()
	addr := RedisAddr()
	if addr == "" {
		t.Skip("test redis not available: set VFD_TEST_REDIS_ADDR")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("test redis not reachable at %s: %v", addr, err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		client.Close()
		t.Fatalf("flushing db %d: %v", db, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Seed writes one hash per entry, keyed "<table>|<key>", the layout the
// state publisher uses.
func Seed(t *testing.T, client *redis.Client, tables map[string]map[string]map[string]string) {
	t.Helper()
	ctx := context.Background()
	for table, entries := range tables {
		for key, fields := range entries {
			values := make(map[string]interface{}, len(fields))
			for k, v := range fields {
				values[k] = v
			}
			if err := client.HSet(ctx, table+"|"+key, values).Err(); err != nil {
				t.Fatalf("seeding %s|%s: %v", table, key, err)
			}
		}
	}
}
