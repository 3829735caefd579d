package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKV implements KV with one Redis hash per user.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV connects to the Redis server at url and verifies it with PING.
func NewRedisKV(ctx context.Context, url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisKV{client: client, prefix: "dealdesk:session:"}, nil
}

func (r *RedisKV) hash(userID string) string {
	return r.prefix + userID
}

// Get implements KV.
func (r *RedisKV) Get(ctx context.Context, userID, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.hash(userID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget: %w", err)
	}
	return v, true, nil
}

// Set implements KV.
func (r *RedisKV) Set(ctx context.Context, userID, key, value string) error {
	if err := r.client.HSet(ctx, r.hash(userID), key, value).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete implements KV.
func (r *RedisKV) Delete(ctx context.Context, userID, key string) error {
	if err := r.client.HDel(ctx, r.hash(userID), key).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
