// Package partition writes sorted frequency snapshots to disk and reads
// them back lazily, one record at a time.
//
// A partition file holds one "item;count" line per record, sorted ascending
// by item. Files are written under a temporary name and renamed once
// synced, so a partition path never refers to a half-written file.
package partition

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
)

// Sequence hands out partition sequence numbers. It replaces a shared dump
// counter: each Writer owns one.
type Sequence struct {
	n atomic.Uint64
}

// Next returns 1, 2, 3, ...
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Current returns the last number handed out.
func (s *Sequence) Current() uint64 {
	return s.n.Load()
}

// Writer serialises sorted snapshots into new partition files.
type Writer struct {
	dir    string
	seq    Sequence
	now    func() time.Time
	logger *slog.Logger
}

// NewWriter creates a Writer that writes partitions into dir. The directory
// is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default().With("component", "partition-writer"),
	}
}

// Write creates a new partition holding records in the order given; callers
// pass records sorted by item. The name combines the writer's sequence
// number with a nanosecond timestamp so concurrent runs never collide.
func (w *Writer) Write(records []record.Record) (File, error) {
	seq := w.seq.Next()
	name := fmt.Sprintf("part-%06d-%d.dat", seq, w.now().UnixNano())
	path := filepath.Join(w.dir, name)

	s, err := CreateStream(path)
	if err != nil {
		return File{}, err
	}
	for _, r := range records {
		if err := s.Append(r); err != nil {
			s.Abort()
			return File{}, err
		}
	}
	f, err := s.Close()
	if err != nil {
		return File{}, err
	}
	f.Seq = seq
	w.logger.Debug("partition written",
		"partition", name,
		"records", f.Records,
		"bytes", f.Bytes,
	)
	return f, nil
}

// Dir returns the directory partitions are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// Issued returns how many sequence numbers have been handed out, failed
// writes included.
func (w *Writer) Issued() uint64 {
	return w.seq.Current()
}
