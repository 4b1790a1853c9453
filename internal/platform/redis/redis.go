// Package redis holds the shared client behind the settings cache, the
// points leaderboards, the hourly activity counters and the batched command
// usage.
package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Client embeds the go-redis client so call sites keep its full command
// surface while depending on this package.
type Client struct {
	*redis.Client
}

// Open connects and pings. Every cached structure here is rebuildable from
// postgres, so a dedicated DB index is enough isolation.
func Open(ctx context.Context, addr, password string, db int) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis: empty addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Client{Client: c}, nil
}
