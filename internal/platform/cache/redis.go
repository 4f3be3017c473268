package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client for documents, sessions and the task queue.
// ioTimeout bounds each command; zero keeps the client defaults.
func New(ctx context.Context, addr string, ioTimeout time.Duration) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:       addr,
		MaxRetries: 1,
	}
	if ioTimeout > 0 {
		opts.ReadTimeout = ioTimeout
		opts.WriteTimeout = ioTimeout
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}
