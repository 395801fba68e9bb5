// Package redisclient wires the Redis connection backing the slot lock store.
package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client and pings it. The caller decides whether a
// ping failure is fatal; the slot lock store treats Redis as optional.
func New(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
