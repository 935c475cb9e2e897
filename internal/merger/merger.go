// Package merger performs a k-way merge over sorted record sources,
// coalescing equal items into a single record whose count is the sum of
// the counts across sources.
package merger

import (
	"container/heap"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
)

// Source is a sorted record cursor. partition.Cursor implements it.
type Source interface {
	Peek() record.Record
	Advance() error
	Empty() bool
	Close() error
}

// Tee receives every record the merger emits, in emission order.
type Tee interface {
	Append(r record.Record) error
}

// Stats summarises a merge.
type Stats struct {
	Sources    int
	Consumed   int64
	Emitted    int64
	Coalesced  int64
	OutOfOrder int64
}

// Merger lazily yields fully coalesced records in ascending item order. It
// owns the sources it is given and closes each one once exhausted.
//
// Correctness depends on every source being sorted. An unsorted source is
// not rejected: its records are merged as they come, which can emit the
// same item twice. Such regressions are counted in Stats.OutOfOrder.
type Merger struct {
	h          sourceHeap
	tee        Tee
	pending    record.Record
	hasPending bool
	last       string
	hasLast    bool
	stats      Stats
	logger     *slog.Logger
}

// New builds a merger over sources. Empty sources are closed immediately.
func New(sources []Source) (*Merger, error) {
	m := &Merger{
		h:      make(sourceHeap, 0, len(sources)),
		stats:  Stats{Sources: len(sources)},
		logger: slog.Default().With("component", "merger"),
	}
	var closeErrs []error
	for i, src := range sources {
		if src.Empty() {
			if err := src.Close(); err != nil {
				closeErrs = append(closeErrs, err)
			}
			continue
		}
		m.h = append(m.h, &entry{src: src, index: i})
	}
	heap.Init(&m.h)
	if len(closeErrs) > 0 {
		m.Close()
		return nil, fmt.Errorf("closing empty sources: %w", errors.Join(closeErrs...))
	}
	return m, nil
}

// SetTee registers a Tee that sees every emitted record.
func (m *Merger) SetTee(t Tee) {
	m.tee = t
}

// Next returns the next coalesced record, or io.EOF once every source is
// drained.
func (m *Merger) Next() (record.Record, error) {
	for m.h.Len() > 0 {
		e := m.h[0]
		cur := e.src.Peek()
		m.stats.Consumed++

		if m.hasPending && cur.Item == m.pending.Item {
			m.pending.Count += cur.Count
			m.stats.Coalesced++
			if err := m.advance(e); err != nil {
				return record.Record{}, err
			}
			continue
		}

		out, emit := m.pending, m.hasPending
		m.pending, m.hasPending = cur, true
		if err := m.advance(e); err != nil {
			return record.Record{}, err
		}
		if emit {
			return out, m.emit(out)
		}
	}
	if m.hasPending {
		out := m.pending
		m.pending, m.hasPending = record.Record{}, false
		return out, m.emit(out)
	}
	return record.Record{}, io.EOF
}

// advance moves the top source forward and either restores its heap
// position or removes and closes it.
func (m *Merger) advance(e *entry) error {
	if err := e.src.Advance(); err != nil {
		return fmt.Errorf("advancing source %d: %w", e.index, err)
	}
	if e.src.Empty() {
		heap.Pop(&m.h)
		if err := e.src.Close(); err != nil {
			return fmt.Errorf("closing source %d: %w", e.index, err)
		}
		return nil
	}
	heap.Fix(&m.h, 0)
	return nil
}

func (m *Merger) emit(r record.Record) error {
	m.stats.Emitted++
	if m.hasLast && r.Item <= m.last {
		m.stats.OutOfOrder++
		m.logger.Warn("merge output out of order, a partition is not sorted",
			"item", r.Item,
			"previous", m.last,
		)
	}
	m.last, m.hasLast = r.Item, true
	if m.tee != nil {
		if err := m.tee.Append(r); err != nil {
			return fmt.Errorf("writing merge output: %w", err)
		}
	}
	return nil
}

func (m *Merger) Stats() Stats {
	return m.stats
}

// Close closes every source that has not been drained yet.
func (m *Merger) Close() error {
	var errs []error
	for _, e := range m.h {
		if err := e.src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.h = m.h[:0]
	return errors.Join(errs...)
}

type entry struct {
	src   Source
	index int
}

// sourceHeap orders sources by their current item. Equal items are merged,
// never ordered, so the index tie-break only makes the order deterministic.
type sourceHeap []*entry

func (h sourceHeap) Len() int { return len(h) }

func (h sourceHeap) Less(i, j int) bool {
	a, b := h[i].src.Peek().Item, h[j].src.Peek().Item
	if a != b {
		return a < b
	}
	return h[i].index < h[j].index
}

func (h sourceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sourceHeap) Push(x interface{}) {
	*h = append(*h, x.(*entry))
}

func (h *sourceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
