package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/redis"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func skipIfNoRedis(t *testing.T) *redis.Client {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	client, err := redis.NewClient(cfg.Redis)
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPostgresSinkIntegration(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	sink := NewPostgresSink(db)
	require.NoError(t, sink.EnsureSchema(ctx))

	r := sampleReport()
	r.RunID = "it-" + time.Now().Format("20060102150405.000000000")
	require.NoError(t, sink.Publish(ctx, r))
	t.Cleanup(func() {
		db.DB.Exec(`DELETE FROM topk_runs WHERE run_id = $1`, r.RunID)
	})

	var item string
	var count int64
	err := db.DB.QueryRowContext(ctx,
		`SELECT item, count FROM topk_items WHERE run_id = $1 AND rank = 1`, r.RunID).Scan(&item, &count)
	require.NoError(t, err)
	assert.Equal(t, "a", item)
	assert.Equal(t, int64(3), count)

	assert.Error(t, sink.Publish(ctx, r), "a run id is recorded once")
}

func TestRedisSinkIntegration(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()
	prefix := "topk-test-" + time.Now().Format("150405.000000")
	sink := NewRedisSink(client, prefix, time.Minute)

	require.NoError(t, sink.Publish(ctx, sampleReport()))
	t.Cleanup(func() {
		client.Del(context.Background(), RunKey(prefix, "run-1"), RunKey(prefix, "latest"))
	})

	top, err := client.TopMembers(ctx, RunKey(prefix, "latest"), 10)
	require.NoError(t, err)
	assert.Equal(t, []redis.Member{{Name: "a", Score: 3}, {Name: "b", Score: 2}}, top)
}
