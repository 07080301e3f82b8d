package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorKey(t *testing.T) {
	key := VectorKey("local-hashing-384", "hello")

	assert.True(t, strings.HasPrefix(key, "emb:local-hashing-384:"))
	assert.Equal(t, "emb:local-hashing-384:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", key)
	assert.NotEqual(t, key, VectorKey("other", "hello"))
	assert.NotEqual(t, key, VectorKey("local-hashing-384", "hello!"))
}

func TestVectorCache_UnreachableRedisIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	vc := NewVectorCache(NewCache(client), time.Minute)

	ctx := context.Background()
	vc.Store(ctx, "m", "text", []float32{1, 2})
	vec, ok := vc.Lookup(ctx, "m", "text")
	assert.False(t, ok)
	assert.Nil(t, vec)
}

// Runs only when REDIS_ADDR points at a live server.
func TestVectorCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	c := NewCache(client)
	require.NoError(t, c.Ping(context.Background()))

	vc := NewVectorCache(c, time.Minute)
	model := "test-" + uuid.NewString()
	ctx := context.Background()

	_, ok := vc.Lookup(ctx, model, "text")
	require.False(t, ok)

	vc.Store(ctx, model, "text", []float32{0.25, -0.5})
	vec, ok := vc.Lookup(ctx, model, "text")
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -0.5}, vec)

	require.NoError(t, client.Del(ctx, VectorKey(model, "text")).Err())
}
