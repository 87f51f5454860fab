package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "creditrouter:cache:"

// Redis is the shared cache backend for multi-instance deployments. Expiry
// is delegated to Redis TTLs, so no sweeper is needed.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", errPing)
	}
	return &Redis{client: client}, nil
}

// redisEntry is the stored JSON shape. The hit count lives in a separate
// key so lookups can bump it without rewriting the payload.
type redisEntry struct {
	Response   string    `json:"response"`
	ModelUsed  string    `json:"model_used"`
	TokensUsed int64     `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
}

// Lookup implements Store.
func (r *Redis) Lookup(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	key := redisKeyPrefix + fingerprint
	raw, errGet := r.client.Get(ctx, key).Bytes()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: redis get: %w", errGet)
	}

	var stored redisEntry
	if errUnmarshal := json.Unmarshal(raw, &stored); errUnmarshal != nil {
		// A corrupt payload is unrecoverable; drop it and miss.
		_ = r.client.Del(ctx, key, key+":hits").Err()
		return nil, false, fmt.Errorf("cache: decode entry: %w", errUnmarshal)
	}

	hits, errIncr := r.client.Incr(ctx, key+":hits").Result()
	if errIncr != nil {
		hits = 1
	}

	return &Entry{
		Fingerprint: fingerprint,
		Response:    stored.Response,
		ModelUsed:   stored.ModelUsed,
		TokensUsed:  stored.TokensUsed,
		CreatedAt:   stored.CreatedAt,
		TTL:         time.Duration(stored.TTLSeconds) * time.Second,
		HitCount:    hits,
	}, true, nil
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload, errMarshal := json.Marshal(redisEntry{
		Response:   entry.Response,
		ModelUsed:  entry.ModelUsed,
		TokensUsed: entry.TokensUsed,
		CreatedAt:  entry.CreatedAt,
		TTLSeconds: int64(entry.TTL / time.Second),
	})
	if errMarshal != nil {
		return fmt.Errorf("cache: encode entry: %w", errMarshal)
	}

	key := redisKeyPrefix + entry.Fingerprint
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, payload, entry.TTL)
	pipe.Set(ctx, key+":hits", 0, entry.TTL)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return fmt.Errorf("cache: redis set: %w", errExec)
	}
	return nil
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}
