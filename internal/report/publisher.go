package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/resilience"
)

type target struct {
	sink  Sink
	retry bool
}

// Publisher fans a report out to its sinks. Network sinks are retried with
// backoff; every sink is attempted even if an earlier one failed.
type Publisher struct {
	targets []target
	timeout time.Duration
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Publisher whose sinks each get timeout per
// attempt. m may be nil.
func NewPublisher(timeout time.Duration, m *metrics.Metrics) *Publisher {
	return &Publisher{
		timeout: timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		metrics: m,
		logger:  slog.Default().With("component", "report-publisher"),
	}
}

// Add registers a sink that is written once.
func (p *Publisher) Add(s Sink) {
	p.targets = append(p.targets, target{sink: s})
}

// AddRetrying registers a sink whose failures are retried.
func (p *Publisher) AddRetrying(s Sink) {
	p.targets = append(p.targets, target{sink: s, retry: true})
}

// SetRetry overrides the retry policy for retrying sinks.
func (p *Publisher) SetRetry(cfg resilience.RetryConfig) {
	p.retry = cfg
}

// Sinks returns the names of the registered sinks in order.
func (p *Publisher) Sinks() []string {
	names := make([]string, len(p.targets))
	for i, t := range p.targets {
		names[i] = t.sink.Name()
	}
	return names
}

// Publish delivers r to every sink. Failures are joined into one
// ErrReportFailed error.
func (p *Publisher) Publish(ctx context.Context, r Report) error {
	var failed []error
	for _, t := range p.targets {
		name := t.sink.Name()
		attempt := func() error {
			return resilience.WithTimeout(ctx, p.timeout, "publish "+name, func(ctx context.Context) error {
				return t.sink.Publish(ctx, r)
			})
		}
		var err error
		if t.retry {
			err = resilience.Retry(ctx, "publish "+name, p.retry, attempt)
		} else {
			err = attempt()
		}
		status := "success"
		if err != nil {
			status = "error"
			p.logger.Error("report publish failed", "sink", name, "run_id", r.RunID, "error", err)
			failed = append(failed, apperrors.New(apperrors.ErrReportFailed, "publishing report", name, err))
		} else {
			p.logger.Info("report published", "sink", name, "run_id", r.RunID, "items", len(r.Items))
		}
		if p.metrics != nil {
			p.metrics.ReportPublishesTotal.WithLabelValues(name, status).Inc()
		}
	}
	return errors.Join(failed...)
}
