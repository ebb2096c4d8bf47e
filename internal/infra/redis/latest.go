// Package redis keeps the latest raw telemetry report in a Redis key so it
// survives restarts and can be shared between instances.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"smart-tracker/internal/infra/retry"
)

const DefaultKey = "tracker:latest"

type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

type LatestCache struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

func NewLatestCache(ctx context.Context, cfg Config) (*LatestCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	return &LatestCache{client: client, key: key, ttl: cfg.TTL}, nil
}

func (c *LatestCache) Close() error {
	return c.client.Close()
}

func (c *LatestCache) Put(ctx context.Context, payload []byte) error {
	if err := c.client.Set(ctx, c.key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}

func (c *LatestCache) Get(ctx context.Context) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	return val, true, nil
}
