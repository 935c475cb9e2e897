package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/merger"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/selector"
)

type mergeOutcome struct {
	topK     []record.Record
	stats    merger.Stats
	admitted int64
	rejected int64
}

// merge combines the partitions into the selector and copies the merged
// stream to mergePath.
func (p *Pipeline) merge(ctx context.Context, files []partition.File, mergePath string) (mergeOutcome, partition.File, error) {
	out, err := partition.CreateStream(mergePath)
	if err != nil {
		return mergeOutcome{}, partition.File{}, err
	}
	res, err := mergeSelect(ctx, files, p.cfg.Capacity, out)
	if err != nil {
		out.Abort()
		return mergeOutcome{}, partition.File{}, err
	}
	mf, err := out.Close()
	if err != nil {
		return mergeOutcome{}, partition.File{}, err
	}

	p.metrics.MergeRecordsEmitted.Add(float64(res.stats.Emitted))
	p.metrics.MergeRecordsCoalesced.Add(float64(res.stats.Coalesced))
	p.metrics.MergeOutOfOrderTotal.Add(float64(res.stats.OutOfOrder))
	p.metrics.SelectorAdmittedTotal.Add(float64(res.admitted))
	p.metrics.SelectorRejectedTotal.Add(float64(res.rejected))
	p.logger.Info("partitions merged",
		"sources", res.stats.Sources,
		"distinct", res.stats.Emitted,
		"coalesced", res.stats.Coalesced,
		"out_of_order", res.stats.OutOfOrder,
		"merge_file", mf.Path,
	)
	return res, mf, nil
}

// mergeSelect opens one cursor per file, k-way merges them and keeps the k
// most frequent records. tee, when non-nil, receives every merged record.
func mergeSelect(ctx context.Context, files []partition.File, k int, tee merger.Tee) (mergeOutcome, error) {
	sel, err := selector.New(k)
	if err != nil {
		return mergeOutcome{}, err
	}

	sources := make([]merger.Source, 0, len(files))
	for _, f := range files {
		c, err := partition.OpenCursor(f)
		if err != nil {
			for _, s := range sources {
				s.Close()
			}
			return mergeOutcome{}, err
		}
		sources = append(sources, c)
	}

	m, err := merger.New(sources)
	if err != nil {
		return mergeOutcome{}, err
	}
	if tee != nil {
		m.SetTee(tee)
	}
	if _, err := selector.Drain(ctx, m, sel); err != nil {
		return mergeOutcome{}, errors.Join(fmt.Errorf("merging %d partitions: %w", len(files), err), m.Close())
	}
	if err := m.Close(); err != nil {
		return mergeOutcome{}, err
	}
	return mergeOutcome{
		topK:     sel.Results(),
		stats:    m.Stats(),
		admitted: sel.Admitted(),
		rejected: sel.Rejected(),
	}, nil
}
