// Package frequency holds the in-memory, size-bounded frequency table that
// sits in front of the partition writer.
package frequency

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
)

// DefaultMaxRecords is the flush threshold used when none is configured.
const DefaultMaxRecords = 500

// FlushFunc persists a snapshot sorted ascending by item. The accumulator
// is cleared only after it returns nil.
type FlushFunc func(records []record.Record) error

// Accumulator counts item occurrences and spills to a FlushFunc once it
// holds more than maxRecords distinct items and a new item arrives.
//
// An Accumulator is owned by a single goroutine and is not safe for
// concurrent use.
type Accumulator struct {
	counts     map[string]int64
	maxRecords int
	flush      FlushFunc
	flushes    int
	observed   int64
}

func NewAccumulator(maxRecords int, flush FlushFunc) *Accumulator {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Accumulator{
		counts:     make(map[string]int64, maxRecords+1),
		maxRecords: maxRecords,
		flush:      flush,
	}
}

// Observe records one occurrence of item. Existing items are updated in
// place whatever the size. The threshold test is strictly greater-than, so
// the table can hold maxRecords+1 items before the next new item spills it.
func (a *Accumulator) Observe(item string) error {
	a.observed++
	if _, ok := a.counts[item]; ok {
		a.counts[item]++
		return nil
	}
	if len(a.counts) > a.maxRecords {
		if err := a.Flush(); err != nil {
			return err
		}
	}
	a.counts[item] = 1
	return nil
}

// Flush hands the sorted contents to the FlushFunc and clears the table.
// It is a no-op on an empty table.
func (a *Accumulator) Flush() error {
	if len(a.counts) == 0 {
		return nil
	}
	if err := a.flush(a.Snapshot()); err != nil {
		return fmt.Errorf("flushing %d records: %w", len(a.counts), err)
	}
	a.flushes++
	a.Reset()
	return nil
}

// Snapshot returns the current counts sorted by item.
func (a *Accumulator) Snapshot() []record.Record {
	entries := make([]record.Record, 0, len(a.counts))
	for item, count := range a.counts {
		entries = append(entries, record.Record{Item: item, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Item < entries[j].Item
	})
	return entries
}

func (a *Accumulator) Reset() {
	clear(a.counts)
}

func (a *Accumulator) Len() int {
	return len(a.counts)
}

// Flushes reports how many non-empty flushes have succeeded.
func (a *Accumulator) Flushes() int {
	return a.flushes
}

// Observed reports the total number of Observe calls.
func (a *Accumulator) Observed() int64 {
	return a.observed
}
