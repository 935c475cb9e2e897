package report

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/redis"
)

// SortedSetStore is the part of the Redis client RedisSink uses.
type SortedSetStore interface {
	ReplaceSortedSet(ctx context.Context, key string, members []redis.Member, ttl time.Duration) error
}

// RedisSink stores each report as a sorted set scored by count, under
// "<prefix>:<run id>" and again under "<prefix>:latest".
type RedisSink struct {
	store  SortedSetStore
	prefix string
	ttl    time.Duration
}

func NewRedisSink(store SortedSetStore, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{store: store, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, r Report) error {
	members := make([]redis.Member, len(r.Items))
	for i, rec := range r.Items {
		members[i] = redis.Member{Name: rec.Item, Score: float64(rec.Count)}
	}
	for _, key := range []string{RunKey(s.prefix, r.RunID), RunKey(s.prefix, "latest")} {
		if err := s.store.ReplaceSortedSet(ctx, key, members, s.ttl); err != nil {
			return err
		}
	}
	return nil
}

// RunKey builds the sorted-set key for a run.
func RunKey(prefix, runID string) string {
	return fmt.Sprintf("%s:%s", prefix, runID)
}
