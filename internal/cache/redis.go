package cache

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/normalize"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	// Parse redis URL (redis://host:port or redis://host:port/db)
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("Connected to Redis at %s", redisURL)
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, key).Bytes()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Autocomplete indexes are sorted sets with score 0. Each member pairs
// the folded form with the display form, so a lex range over the
// folded prefix gives case-insensitive completion while the original
// casing comes back to the client.

func autocompleteKey(field model.Field) string {
	return "autocomplete:" + string(field)
}

func autocompleteMember(value string) string {
	return normalize.Fold(value) + "\x00" + value
}

// AddValues indexes values for prefix suggestion.
func (c *RedisCache) AddValues(ctx context.Context, field model.Field, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(values))
	for _, v := range values {
		members = append(members, redis.Z{Score: 0, Member: autocompleteMember(v)})
	}
	return c.client.ZAdd(ctx, autocompleteKey(field), members...).Err()
}

// SuggestValues returns up to limit display values whose folded form
// starts with the folded prefix.
func (c *RedisCache) SuggestValues(ctx context.Context, field model.Field, prefix string, limit int64) ([]string, error) {
	folded := normalize.Fold(strings.TrimSpace(prefix))
	if folded == "" {
		return nil, nil
	}
	members, err := c.client.ZRangeByLex(ctx, autocompleteKey(field), &redis.ZRangeBy{
		Min:   "[" + folded,
		Max:   "[" + folded + "\xff",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if i := strings.IndexByte(m, 0); i >= 0 {
			out = append(out, m[i+1:])
		}
	}
	return out, nil
}

// CountValues reports how many values are indexed for field.
func (c *RedisCache) CountValues(ctx context.Context, field model.Field) (int64, error) {
	return c.client.ZCard(ctx, autocompleteKey(field)).Result()
}

// DropValues clears the index for field. Callers rebuild lazily from
// the database on the next suggestion request.
func (c *RedisCache) DropValues(ctx context.Context, field model.Field) error {
	return c.client.Del(ctx, autocompleteKey(field)).Err()
}
