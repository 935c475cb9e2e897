// Command topk prints the K most frequent pipe-delimited sentences of a
// file that may be far larger than memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/report"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/tracing"
)

const usageText = `Usage:
  topk [options] <file> <k>
  topk <file> <k> [options]

  file	: file with sentences to be processed, one or more per line separated by '|'
  k	: number of most frequent sentences to report

Options:
`

type options struct {
	configPath string
	input      string
	capacity   int
	maxRecords int
	keep       bool
	workDir    string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// parseArgs accepts options before or after the two positional arguments.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("topk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	fs.IntVar(&opts.maxRecords, "m", 0, "max distinct records held in memory before spilling to disk")
	fs.BoolVar(&opts.keep, "d", false, "keep partition and merge files")
	fs.StringVar(&opts.workDir, "workdir", "", "directory for partition files (default: 'dump' next to the input)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	positional := fs.Args()
	if len(positional) < 2 {
		fs.Usage()
		return opts, fmt.Errorf("expected <file> <k>, got %d arguments", len(positional))
	}
	if err := fs.Parse(positional[2:]); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts.input = positional[0]
	k, err := strconv.Atoi(positional[1])
	if err != nil || k <= 0 {
		fs.Usage()
		return opts, fmt.Errorf("k must be a positive integer, got %q", positional[1])
	}
	opts.capacity = k
	if opts.maxRecords < 0 {
		return opts, fmt.Errorf("-m must be positive, got %d", opts.maxRecords)
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return apperrors.ExitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "topk: %v\n", err)
		return apperrors.ExitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return apperrors.ExitFailure
	}
	cfg.Pipeline.Capacity = opts.capacity
	if opts.maxRecords > 0 {
		cfg.Pipeline.MaxRecords = opts.maxRecords
	}
	if opts.keep {
		cfg.Pipeline.KeepArtifacts = true
	}
	if opts.workDir != "" {
		cfg.Pipeline.WorkDir = opts.workDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "topk: %v\n", err)
		return apperrors.ExitUsage
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = execute(ctx, cfg, opts.input, stdout)
	if err != nil {
		slog.Error("topk failed", "error", err, "exit_code", apperrors.ExitCode(err))
	}
	return apperrors.ExitCode(err)
}

func execute(ctx context.Context, cfg *config.Config, input string, stdout io.Writer) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	progress := &health.Progress{}
	checker := health.NewChecker()
	checker.Register("pipeline", progress.Check())

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}
	if cfg.Metrics.PushgatewayURL != "" {
		defer func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName, reg); err != nil {
				slog.Warn("metrics push failed", "error", err)
			}
		}()
	}

	publisher, closeSinks, err := buildPublisher(ctx, cfg, stdout, m, checker)
	if err != nil {
		return err
	}
	defer closeSinks()

	runID := pipeline.NewRunID(input, time.Now())
	ctx = logger.WithRunID(ctx, runID)
	ctx, root := tracing.StartSpan(ctx, "run", runID)
	defer func() {
		root.End()
		if cfg.Tracing.Enabled {
			root.Log(slog.Default())
		}
	}()

	p, err := pipeline.New(cfg.Pipeline, m, progress)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, input)
	if err != nil {
		return err
	}

	progress.Set(health.StageReport)
	reportCtx, span := tracing.StartChildSpan(ctx, "report")
	err = publisher.Publish(reportCtx, newReport(res, cfg.Pipeline.Capacity))
	span.End()
	if err != nil {
		progress.Set(health.StageFailed)
		return err
	}
	progress.Set(health.StageDone)
	return nil
}

// buildPublisher connects every enabled sink up front so that an
// unreachable backend fails the run before any work is done.
func buildPublisher(ctx context.Context, cfg *config.Config, stdout io.Writer, m *metrics.Metrics, checker *health.Checker) (*report.Publisher, func(), error) {
	pub := report.NewPublisher(cfg.Report.Timeout, m)
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing report sink", "error", err)
			}
		}
	}

	if cfg.Report.Console {
		pub.Add(report.NewConsoleSink(stdout))
	}
	if cfg.Report.Redis {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, apperrors.New(apperrors.ErrReportFailed, "connecting report sink", "redis", err)
		}
		closers = append(closers, client.Close)
		checker.Register("redis", pingCheck(client.Ping))
		pub.AddRetrying(report.NewRedisSink(client, cfg.Redis.KeyPrefix, cfg.Redis.ReportTTL))
	}
	if cfg.Report.Postgres {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			closeAll()
			return nil, nil, apperrors.New(apperrors.ErrReportFailed, "connecting report sink", "postgres", err)
		}
		closers = append(closers, db.Close)
		sink := report.NewPostgresSink(db)
		if err := sink.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, apperrors.New(apperrors.ErrReportFailed, "preparing report sink", "postgres", err)
		}
		checker.Register("postgres", pingCheck(db.Ping))
		pub.AddRetrying(sink)
	}
	if cfg.Report.Kafka {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.ReportTopic)
		closers = append(closers, producer.Close)
		pub.AddRetrying(report.NewKafkaSink(producer))
	}
	slog.Debug("report sinks configured", "sinks", pub.Sinks())
	return pub, closeAll, nil
}

func pingCheck(ping func(context.Context) error) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if err := ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}

func newReport(res *pipeline.Result, capacity int) report.Report {
	return report.Report{
		RunID:       res.RunID,
		Input:       res.Input,
		Capacity:    capacity,
		Items:       res.TopK,
		GeneratedAt: time.Now().UTC(),
		Stats: report.Stats{
			Lines:      res.Lines,
			Observed:   res.Observed,
			Distinct:   res.Distinct,
			Partitions: len(res.Partitions),
			Duration:   res.Timings.Total,
		},
	}
}
