package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// VectorCache memoizes embeddings in Redis. Every failure degrades to a miss.
type VectorCache struct {
	cache *Cache
	ttl   time.Duration
}

func NewVectorCache(c *Cache, ttl time.Duration) *VectorCache {
	return &VectorCache{cache: c, ttl: ttl}
}

// VectorKey is emb:<model>:<sha256 of text>.
func VectorKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func (v *VectorCache) Lookup(ctx context.Context, model, text string) ([]float32, bool) {
	var vec []float32
	if err := v.cache.Get(ctx, VectorKey(model, text), &vec); err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("vector cache lookup failed", "model", model, "error", err)
		}
		return nil, false
	}
	return vec, len(vec) > 0
}

func (v *VectorCache) Store(ctx context.Context, model, text string, vec []float32) {
	if err := v.cache.Set(ctx, VectorKey(model, text), vec, v.ttl); err != nil {
		slog.Warn("vector cache store failed", "model", model, "error", err)
	}
}
