//go:build integration

package redis_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/marcelsud/webhook-dispatch/storage/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer holds the Redis testcontainer and its address
type RedisContainer struct {
	Container *testcontainersredis.RedisContainer
	Addr      string
}

// SetupRedisContainer starts a Redis testcontainer
func SetupRedisContainer(t *testing.T, ctx context.Context) (*RedisContainer, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")
	addr = strings.TrimPrefix(addr, "redis://")

	cleanup := func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return &RedisContainer{Container: redisContainer, Addr: addr}, cleanup
}

// CreateTestStore connects a store to the container and flushes it
func CreateTestStore(t *testing.T, addr string) *redis.Store {
	t.Helper()

	store, err := redis.NewStore(addr, "", 0)
	require.NoError(t, err, "failed to create Redis store")
	require.NoError(t, store.Client().FlushDB(context.Background()).Err())

	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

// KeyExists checks if a Redis key exists
func KeyExists(t *testing.T, addr, key string) bool {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	exists, err := client.Exists(context.Background(), key).Result()
	require.NoError(t, err)
	return exists > 0
}

// interleave runs fn once, right before the first command that match accepts
type interleave struct {
	match func(args []interface{}) bool
	fn    func()
	once  sync.Once
}

func (h *interleave) DialHook(next goredis.DialHook) goredis.DialHook {
	return next
}

func (h *interleave) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if h.match(cmd.Args()) {
			h.once.Do(h.fn)
		}
		return next(ctx, cmd)
	}
}

func (h *interleave) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

// scriptOn matches EVAL/EVALSHA calls touching a key with prefix
func scriptOn(prefix string) func(args []interface{}) bool {
	return func(args []interface{}) bool {
		if len(args) == 0 {
			return false
		}
		name, _ := args[0].(string)
		if !strings.EqualFold(name, "evalsha") && !strings.EqualFold(name, "eval") {
			return false
		}
		for _, arg := range args[1:] {
			if key, ok := arg.(string); ok && strings.HasPrefix(key, prefix) {
				return true
			}
		}
		return false
	}
}

// CreateInterleavedStore returns a store whose client runs fn before the first matching command
func CreateInterleavedStore(t *testing.T, addr string, match func(args []interface{}) bool, fn func()) *redis.Store {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	client.AddHook(&interleave{match: match, fn: fn})
	store := redis.NewStoreWithClient(client)

	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}
