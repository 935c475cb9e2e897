// Package report publishes the final top-K of a run to one or more sinks:
// the console, a Redis sorted set, PostgreSQL tables and a Kafka topic.
package report

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
)

// Report is the outcome of one successful run.
type Report struct {
	RunID       string          `json:"run_id"`
	Input       string          `json:"input"`
	Capacity    int             `json:"capacity"`
	Items       []record.Record `json:"items"`
	GeneratedAt time.Time       `json:"generated_at"`
	Stats       Stats           `json:"stats"`
}

// Stats are the run counters carried alongside the items.
type Stats struct {
	Lines      int64         `json:"lines"`
	Observed   int64         `json:"observed"`
	Distinct   int64         `json:"distinct"`
	Partitions int           `json:"partitions"`
	Duration   time.Duration `json:"duration_ns"`
}

// Sink delivers a Report somewhere.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r Report) error
}
