// Package selector keeps the K records with the largest counts seen in a
// stream, using a bounded min-heap keyed by count.
package selector

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
)

// Selector retains at most K records. Once full, a record is admitted only
// if its count is strictly greater than the current minimum, so among equal
// counts the earliest arrival wins.
type Selector struct {
	k        int
	h        countHeap
	arrivals uint64
	admitted int64
	rejected int64
}

// New returns a Selector with capacity k. k must be positive.
func New(k int) (*Selector, error) {
	if k <= 0 {
		return nil, fmt.Errorf("selector capacity must be positive, got %d", k)
	}
	return &Selector{
		k: k,
		h: make(countHeap, 0, k),
	}, nil
}

// Offer considers r for the top K and reports whether it was retained.
func (s *Selector) Offer(r record.Record) bool {
	s.arrivals++
	c := candidate{rec: r, arrival: s.arrivals}
	if s.h.Len() < s.k {
		heap.Push(&s.h, c)
		s.admitted++
		return true
	}
	if r.Count <= s.h[0].rec.Count {
		s.rejected++
		return false
	}
	s.h[0] = c
	heap.Fix(&s.h, 0)
	s.admitted++
	return true
}

// Min returns the smallest retained count, or 0 when empty.
func (s *Selector) Min() int64 {
	if s.h.Len() == 0 {
		return 0
	}
	return s.h[0].rec.Count
}

func (s *Selector) Len() int { return s.h.Len() }

func (s *Selector) Cap() int { return s.k }

// Admitted and Rejected count Offer outcomes. A record admitted and later
// evicted is counted once as admitted.
func (s *Selector) Admitted() int64 { return s.admitted }

func (s *Selector) Rejected() int64 { return s.rejected }

// Results returns the retained records, largest count first and earlier
// arrivals first among equal counts. The selector is left unchanged.
func (s *Selector) Results() []record.Record {
	cands := make([]candidate, len(s.h))
	copy(cands, s.h)
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].rec.Count != cands[j].rec.Count {
			return cands[i].rec.Count > cands[j].rec.Count
		}
		return cands[i].arrival < cands[j].arrival
	})
	out := make([]record.Record, len(cands))
	for i, c := range cands {
		out[i] = c.rec
	}
	return out
}

// Drain feeds every record of src into s. It stops early if ctx is
// cancelled.
func Drain(ctx context.Context, src record.Source, s *Selector) (int64, error) {
	var n int64
	for {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		r, err := src.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		s.Offer(r)
		n++
	}
}

type candidate struct {
	rec     record.Record
	arrival uint64
}

// countHeap is a min-heap on count. Among equal counts the latest arrival
// sits closest to the root, so it is the one evicted.
type countHeap []candidate

func (h countHeap) Len() int { return len(h) }

func (h countHeap) Less(i, j int) bool {
	if h[i].rec.Count != h[j].rec.Count {
		return h[i].rec.Count < h[j].rec.Count
	}
	return h[i].arrival > h[j].arrival
}

func (h countHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *countHeap) Push(x interface{}) {
	*h = append(*h, x.(candidate))
}

func (h *countHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
