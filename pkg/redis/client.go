// Package redis wraps go-redis/v9 with the few operations the report sink
// needs: writing a scored set atomically with a TTL and reading it back.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/config"
)

// Member is one scored entry of a sorted set.
type Member struct {
	Name  string
	Score float64
}

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// ReplaceSortedSet replaces key with members in one MULTI/EXEC and, when
// ttl is positive, sets its expiry.
func (c *Client) ReplaceSortedSet(ctx context.Context, key string, members []Member, ttl time.Duration) error {
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Name}
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(zs) > 0 {
			pipe.ZAdd(ctx, key, zs...)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing sorted set %s: %w", key, err)
	}
	return nil
}

// TopMembers returns up to n members of key, highest score first.
func (c *Client) TopMembers(ctx context.Context, key string, n int) ([]Member, error) {
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading sorted set %s: %w", key, err)
	}
	out := make([]Member, len(zs))
	for i, z := range zs {
		name, _ := z.Member.(string)
		out[i] = Member{Name: name, Score: z.Score}
	}
	return out, nil
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
