// Package redis provides a Redis-backed credential backend. All credentials
// live as fields of a single hash.
package redis

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const DefaultHashKey = "flowscribe:credentials"

type Backend struct {
	client  redis.UniversalClient
	hashKey string
}

// New connects using a redis:// or rediss:// URL.
func New(ctx context.Context, url string) (*Backend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, DefaultHashKey), nil
}

func NewWithClient(client redis.UniversalClient, hashKey string) *Backend {
	if hashKey == "" {
		hashKey = DefaultHashKey
	}

	return &Backend{client: client, hashKey: hashKey}
}

func (b *Backend) Get(ctx context.Context, name string) (string, bool, error) {
	value, err := b.client.HGet(ctx, b.hashKey, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to read credential %s: %w", name, err)
	}

	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, name, value string) error {
	err := b.client.HSet(ctx, b.hashKey, name, value).Err()
	if err != nil {
		return fmt.Errorf("failed to store credential %s: %w", name, err)
	}

	return nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	err := b.client.HDel(ctx, b.hashKey, name).Err()
	if err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", name, err)
	}

	return nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Backend) Close(_ context.Context) error {
	return b.client.Close()
}
