package redis

import (
	"context"
	"fmt"

	"go-stepflow/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings the server so a bad address fails at
// startup rather than on the first publish.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 100,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
