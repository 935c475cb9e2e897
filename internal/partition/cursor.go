package partition

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
)

// Cursor is a forward-only reader over one partition file. It always holds
// the next unread record unless Empty reports true.
type Cursor struct {
	file    File
	f       *os.File
	r       *bufio.Reader
	digest  *xxhash.Digest
	current record.Record
	line    int
	empty   bool
	closed  bool
}

// OpenCursor opens f and pre-fetches its first record. A zero-record file
// yields a cursor that is immediately empty.
func OpenCursor(f File) (*Cursor, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrIOFailure, "opening partition", f.Path, err)
	}
	c := &Cursor{
		file:   f,
		f:      fh,
		r:      bufio.NewReaderSize(fh, 64*1024),
		digest: xxhash.New(),
	}
	if err := c.Advance(); err != nil {
		fh.Close()
		return nil, err
	}
	return c, nil
}

// Peek returns the buffered record without consuming it. The result is the
// zero Record when the cursor is empty.
func (c *Cursor) Peek() record.Record {
	return c.current
}

func (c *Cursor) Empty() bool {
	return c.empty
}

// Advance replaces the buffered record with the next one in the file, or
// marks the cursor empty at end of file.
func (c *Cursor) Advance() error {
	if c.empty {
		return nil
	}
	raw, err := c.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return apperrors.New(apperrors.ErrIOFailure, "reading partition", c.file.Path, err)
	}
	if raw == "" && err == io.EOF {
		return c.finish()
	}
	c.line++
	c.digest.WriteString(raw)

	line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
	rec, perr := record.Parse(line)
	if perr != nil {
		return apperrors.Newf(apperrors.ErrMalformedPartitionRecord, "parsing partition", c.file.Path,
			"line %d: %v", c.line, perr)
	}
	c.current = rec
	return nil
}

func (c *Cursor) finish() error {
	c.empty = true
	c.current = record.Record{}
	if c.file.Digest != 0 && c.digest.Sum64() != c.file.Digest {
		return apperrors.Newf(apperrors.ErrMalformedPartitionRecord, "verifying partition", c.file.Path,
			"digest mismatch after %d lines: got %016x, want %016x", c.line, c.digest.Sum64(), c.file.Digest)
	}
	return nil
}

// File returns the partition this cursor reads.
func (c *Cursor) File() File {
	return c.file
}

// Lines returns the number of lines consumed so far.
func (c *Cursor) Lines() int {
	return c.line
}

// Close releases the file handle. It may be called more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.empty = true
	if err := c.f.Close(); err != nil {
		return apperrors.New(apperrors.ErrIOFailure, "closing partition", c.file.Path, err)
	}
	return nil
}
