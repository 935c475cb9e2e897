// Package pipeline drives a complete top-K run: it reads the input, spills
// bounded frequency tables to partition files, merges the partitions and
// selects the K most frequent items.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/frequency"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/tracing"
)

// Delimiter separates items within an input line.
const Delimiter = "|"

// DumpDirName is the work directory created next to the input when none is
// configured.
const DumpDirName = "dump"

// Timings are wall-clock durations of the run's stages.
type Timings struct {
	Ingest time.Duration `yaml:"ingest"`
	Merge  time.Duration `yaml:"merge"`
	Total  time.Duration `yaml:"total"`
}

// Result is the outcome of a successful run.
type Result struct {
	RunID      string
	Input      string
	TopK       []record.Record
	Partitions []partition.File
	Merge      partition.File
	RunDir     string
	// Kept reports whether RunDir and its files were left on disk.
	Kept     bool
	Lines    int64
	Observed int64
	Distinct int64
	Timings  Timings
}

// Pipeline runs top-K computations with one configuration. A Pipeline may
// be reused for several runs, one at a time.
type Pipeline struct {
	cfg      config.PipelineConfig
	metrics  *metrics.Metrics
	progress *health.Progress
	now      func() time.Time
	logger   *slog.Logger
}

// New validates cfg and creates a Pipeline. m and progress may be nil.
func New(cfg config.PipelineConfig, m *metrics.Metrics, progress *health.Progress) (*Pipeline, error) {
	if cfg.Capacity <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "creating pipeline", "",
			"capacity must be a positive integer, got %d", cfg.Capacity)
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = frequency.DefaultMaxRecords
	}
	if cfg.ReadAhead < 0 {
		cfg.ReadAhead = 0
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if progress == nil {
		progress = &health.Progress{}
	}
	return &Pipeline{
		cfg:      cfg,
		metrics:  m,
		progress: progress,
		now:      time.Now,
		logger:   slog.Default().With("component", "pipeline"),
	}, nil
}

// NewRunID derives a short, unique identifier for a run over input.
func NewRunID(input string, at time.Time) string {
	seed := fmt.Sprintf("%s|%d|%d", input, at.UnixNano(), os.Getpid())
	return fmt.Sprintf("%016x", xxhash.Sum64String(seed))
}

// Run computes the top K items of the file at inputPath. A missing or
// unreadable input fails with ErrInputNotFound before anything is written.
func (p *Pipeline) Run(ctx context.Context, inputPath string) (*Result, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		p.fail()
		return nil, apperrors.New(apperrors.ErrInputNotFound, "opening input", inputPath, err)
	}
	if info.IsDir() {
		p.fail()
		return nil, apperrors.Newf(apperrors.ErrInputNotFound, "opening input", inputPath, "is a directory")
	}
	f, err := os.Open(inputPath)
	if err != nil {
		p.fail()
		return nil, apperrors.New(apperrors.ErrInputNotFound, "opening input", inputPath, err)
	}
	defer f.Close()

	workDir := p.cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(filepath.Dir(inputPath), DumpDirName)
	}
	return p.run(ctx, f, inputPath, workDir, p.cfg.WorkDir == "")
}

// RunReader computes the top K items of r. name identifies the input in
// logs and reports. Without a configured work directory, partitions go to
// the system temp directory.
func (p *Pipeline) RunReader(ctx context.Context, r io.Reader, name string) (*Result, error) {
	workDir := p.cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "topk-"+DumpDirName)
	}
	return p.run(ctx, r, name, workDir, p.cfg.WorkDir == "")
}

func (p *Pipeline) run(ctx context.Context, r io.Reader, name string, workDir string, ownWorkDir bool) (*Result, error) {
	start := p.now()
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = NewRunID(name, start)
		ctx = logger.WithRunID(ctx, runID)
	}
	log := p.logger.With("run_id", runID)

	runDir := filepath.Join(workDir, fmt.Sprintf("run-%d-%d", start.UnixNano(), os.Getpid()))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		p.fail()
		return nil, apperrors.New(apperrors.ErrIOFailure, "creating run directory", runDir, err)
	}
	log.Info("run started",
		"input", name,
		"capacity", p.cfg.Capacity,
		"max_records", p.cfg.MaxRecords,
		"run_dir", runDir,
	)

	res := &Result{RunID: runID, Input: name, RunDir: runDir}

	p.progress.Set(health.StageIngest)
	ingestCtx, ingestSpan := tracing.StartChildSpan(ctx, "ingest")
	ing, err := p.ingest(ingestCtx, r, name, partition.NewWriter(runDir))
	res.Timings.Ingest = ingestSpan.End()
	p.metrics.StageDuration.WithLabelValues(health.StageIngest).Observe(res.Timings.Ingest.Seconds())
	if err != nil {
		p.fail()
		log.Error("ingest failed", "error", err, "partitions_written", len(ing.partitions))
		return nil, err
	}
	ingestSpan.SetAttr("lines", ing.lines)
	ingestSpan.SetAttr("partitions", len(ing.partitions))
	res.Partitions = ing.partitions
	res.Lines = ing.lines
	res.Observed = ing.observed

	p.progress.Set(health.StageMerge)
	mergeCtx, mergeSpan := tracing.StartChildSpan(ctx, "merge")
	mergePath := filepath.Join(runDir, fmt.Sprintf("merge-%d.dat", p.now().UnixNano()))
	out, mergeFile, err := p.merge(mergeCtx, res.Partitions, mergePath)
	res.Timings.Merge = mergeSpan.End()
	p.metrics.StageDuration.WithLabelValues(health.StageMerge).Observe(res.Timings.Merge.Seconds())
	if err != nil {
		p.fail()
		log.Error("merge failed", "error", err)
		return nil, err
	}
	mergeSpan.SetAttr("distinct", out.stats.Emitted)
	mergeSpan.SetAttr("coalesced", out.stats.Coalesced)
	res.TopK = out.topK
	res.Merge = mergeFile
	res.Distinct = out.stats.Emitted
	res.Timings.Total = p.now().Sub(start)

	if p.cfg.KeepArtifacts {
		if err := writeManifest(p.manifest(res)); err != nil {
			p.fail()
			return nil, err
		}
		res.Kept = true
	} else {
		p.cleanup(ctx, runDir, workDir, ownWorkDir)
	}

	p.progress.Set(health.StageDone)
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.metrics.LastSuccessfulRunSeconds.Set(float64(p.now().Unix()))
	log.Info("run complete",
		"lines", res.Lines,
		"items", res.Observed,
		"distinct", res.Distinct,
		"partitions", len(res.Partitions),
		"top_k", len(res.TopK),
		"kept", res.Kept,
		"duration_ms", res.Timings.Total.Milliseconds(),
	)
	return res, nil
}

// cleanup removes the run directory and, for the default dump directory,
// the work directory too once no other run is using it. Failures are
// logged, not returned: the result is already complete.
func (p *Pipeline) cleanup(ctx context.Context, runDir, workDir string, ownWorkDir bool) {
	p.progress.Set(health.StageCleanup)
	_, span := tracing.StartChildSpan(ctx, "cleanup")
	defer span.End()
	if err := os.RemoveAll(runDir); err != nil {
		p.logger.Warn("removing run directory", "run_dir", runDir, "error", err)
		return
	}
	if ownWorkDir {
		// Fails while other runs still hold directories there.
		os.Remove(workDir)
	}
}

func (p *Pipeline) fail() {
	p.progress.Set(health.StageFailed)
	p.metrics.RunsTotal.WithLabelValues("failure").Inc()
}
