package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultBaseTTL = 15 * time.Minute

// RedisCache keeps one serialized cart per user under "cart:<userID>".
// Entries age out on their own; cart mutations remove them eagerly
// through Delete.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewRedisCache builds a cart cache with the given base TTL. A zero or
// negative baseTTL selects the 15 minute default.
func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = defaultBaseTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

func (r RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if e2 := json.Unmarshal(data, &cart); e2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", e2)
	}

	return &cart, nil
}

func (r RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if e2 := r.client.Set(ctx, cacheKey(userID), jsonCart, r.entryTTL()).Err(); e2 != nil {
		return fmt.Errorf("redis set failed: %w", e2)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

// entryTTL spreads expirations across a third of the base TTL so
// entries written in the same burst do not all expire at once.
func (r RedisCache) entryTTL() time.Duration {
	return r.baseTTL + time.Duration(rand.Int63n(int64(r.baseTTL)/3+1))
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
