// Package metrics defines the Prometheus collectors of a top-K run and
// exposes helpers for scraping and for pushing to a Pushgateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a run.
type Metrics struct {
	LinesReadTotal           prometheus.Counter
	ItemsObservedTotal       prometheus.Counter
	PartitionsFlushedTotal   *prometheus.CounterVec
	PartitionRecordsTotal    prometheus.Counter
	PartitionBytesTotal      prometheus.Counter
	MergeRecordsEmitted      prometheus.Counter
	MergeRecordsCoalesced    prometheus.Counter
	MergeOutOfOrderTotal     prometheus.Counter
	SelectorAdmittedTotal    prometheus.Counter
	SelectorRejectedTotal    prometheus.Counter
	StageDuration            *prometheus.HistogramVec
	RunsTotal                *prometheus.CounterVec
	ReportPublishesTotal     *prometheus.CounterVec
	LastSuccessfulRunSeconds prometheus.Gauge
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesReadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_lines_read_total",
				Help: "Total input lines read.",
			},
		),
		ItemsObservedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_items_observed_total",
				Help: "Total items fed to the frequency accumulator.",
			},
		),
		PartitionsFlushedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topk_partitions_flushed_total",
				Help: "Partition flushes by status.",
			},
			[]string{"status"},
		),
		PartitionRecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_partition_records_written_total",
				Help: "Records written to partition files.",
			},
		),
		PartitionBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_partition_bytes_written_total",
				Help: "Bytes written to partition files.",
			},
		),
		MergeRecordsEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_merge_records_emitted_total",
				Help: "Distinct records emitted by the k-way merge.",
			},
		),
		MergeRecordsCoalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_merge_records_coalesced_total",
				Help: "Partition records folded into an already pending item.",
			},
		),
		MergeOutOfOrderTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_merge_out_of_order_total",
				Help: "Merge output records that were not strictly ascending.",
			},
		),
		SelectorAdmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_selector_admitted_total",
				Help: "Records admitted into the top-K heap.",
			},
		),
		SelectorRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topk_selector_rejected_total",
				Help: "Records discarded by the full top-K heap.",
			},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "topk_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 1800},
			},
			[]string{"stage"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topk_runs_total",
				Help: "Pipeline runs by status.",
			},
			[]string{"status"},
		),
		ReportPublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topk_report_publishes_total",
				Help: "Report publish attempts by sink and status.",
			},
			[]string{"sink", "status"},
		),
		LastSuccessfulRunSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "topk_last_successful_run_timestamp_seconds",
				Help: "Unix time of the last successful run.",
			},
		),
	}

	reg.MustRegister(
		m.LinesReadTotal,
		m.ItemsObservedTotal,
		m.PartitionsFlushedTotal,
		m.PartitionRecordsTotal,
		m.PartitionBytesTotal,
		m.MergeRecordsEmitted,
		m.MergeRecordsCoalesced,
		m.MergeOutOfOrderTotal,
		m.SelectorAdmittedTotal,
		m.SelectorRejectedTotal,
		m.StageDuration,
		m.RunsTotal,
		m.ReportPublishesTotal,
		m.LastSuccessfulRunSeconds,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
