package pipeline

import (
	"bufio"
	"context"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/frequency"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
)

// cancelCheckInterval is how many lines the consumer handles between
// context checks.
const cancelCheckInterval = 1024

type ingestResult struct {
	partitions []partition.File
	lines      int64
	observed   int64
}

// ingest streams r line by line into an accumulator that spills to w. A
// reader goroutine fills a bounded channel of lines; only the consuming
// goroutine touches the accumulator.
func (p *Pipeline) ingest(ctx context.Context, r io.Reader, name string, w *partition.Writer) (ingestResult, error) {
	var res ingestResult
	acc := frequency.NewAccumulator(p.cfg.MaxRecords, func(records []record.Record) error {
		f, err := w.Write(records)
		if err != nil {
			p.metrics.PartitionsFlushedTotal.WithLabelValues("error").Inc()
			return err
		}
		p.metrics.PartitionsFlushedTotal.WithLabelValues("success").Inc()
		p.metrics.PartitionRecordsTotal.Add(float64(f.Records))
		p.metrics.PartitionBytesTotal.Add(float64(f.Bytes))
		res.partitions = append(res.partitions, f)
		p.logger.Info("partition flushed",
			"partition", f.Path,
			"seq", f.Seq,
			"records", f.Records,
		)
		return nil
	})

	lines := make(chan string, p.cfg.ReadAhead)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, err := br.ReadString('\n')
			if len(line) > 0 {
				line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
				select {
				case lines <- line:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return apperrors.New(apperrors.ErrIOFailure, "reading input", name, err)
			}
		}
	})

	g.Go(func() error {
		for line := range lines {
			if res.lines%cancelCheckInterval == 0 {
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			res.lines++
			for _, item := range SplitLine(line) {
				if err := acc.Observe(item); err != nil {
					return err
				}
			}
		}
		return acc.Flush()
	})

	err := g.Wait()
	res.observed = acc.Observed()
	p.metrics.LinesReadTotal.Add(float64(res.lines))
	p.metrics.ItemsObservedTotal.Add(float64(res.observed))
	return res, err
}

// SplitLine splits a line on Delimiter and trims each item. Empty items are
// kept: "a||b" yields "a", "" and "b".
func SplitLine(line string) []string {
	items := strings.Split(line, Delimiter)
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}
