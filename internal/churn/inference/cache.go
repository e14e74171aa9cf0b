package inference

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"churn-service/internal/churn/encoder"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "churn:prediction:"

// Cache stores predictions keyed by the aligned vector they were computed from.
type Cache interface {
	Get(ctx context.Context, key string) (*PredictionResult, bool, error)
	Set(ctx context.Context, key string, result *PredictionResult) error
}

// CacheKey identifies vec under a model version. Equal vectors always share a key.
func CacheKey(modelVersion string, vec encoder.AlignedVector) string {
	h := sha256.New()
	h.Write([]byte(modelVersion))
	h.Write([]byte{0})
	var buf [8]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*PredictionResult, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var result PredictionResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return &result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, result *PredictionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
