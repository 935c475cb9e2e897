package partition

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
)

// File describes a finished, immutable record file on disk.
type File struct {
	Path    string `yaml:"path"`
	Seq     uint64 `yaml:"seq"`
	Records int    `yaml:"records"`
	Bytes   int64  `yaml:"bytes"`
	Digest  uint64 `yaml:"digest"`
}

// Stream appends record lines to a temporary file and publishes it under
// its final name on Close. Until Close succeeds nothing is visible at the
// final path.
type Stream struct {
	path    string
	tmpPath string
	file    *os.File
	buf     *bufio.Writer
	digest  *xxhash.Digest
	scratch []byte
	records int
	bytes   int64
	closed  bool
}

// CreateStream creates the parent directory if needed and opens path+".tmp"
// for writing.
func CreateStream(path string) (*Stream, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.New(apperrors.ErrIOFailure, "creating partition directory", filepath.Dir(path), err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrIOFailure, "creating temp file", tmpPath, err)
	}
	return &Stream{
		path:    path,
		tmpPath: tmpPath,
		file:    f,
		buf:     bufio.NewWriterSize(f, 64*1024),
		digest:  xxhash.New(),
		scratch: make([]byte, 0, 256),
	}, nil
}

// Append writes one record line.
func (s *Stream) Append(r record.Record) error {
	s.scratch = record.AppendFormat(s.scratch[:0], r)
	if _, err := s.buf.Write(s.scratch); err != nil {
		return apperrors.New(apperrors.ErrIOFailure, "writing record", s.tmpPath, err)
	}
	s.digest.Write(s.scratch)
	s.records++
	s.bytes += int64(len(s.scratch))
	return nil
}

// Close flushes, syncs and renames the temp file into place.
func (s *Stream) Close() (File, error) {
	if s.closed {
		return File{}, fmt.Errorf("stream %s already closed", s.path)
	}
	s.closed = true
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return File{}, apperrors.New(apperrors.ErrIOFailure, "flushing records", s.tmpPath, err)
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return File{}, apperrors.New(apperrors.ErrIOFailure, "syncing file", s.tmpPath, err)
	}
	if err := s.file.Close(); err != nil {
		return File{}, apperrors.New(apperrors.ErrIOFailure, "closing file", s.tmpPath, err)
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return File{}, apperrors.New(apperrors.ErrIOFailure, "renaming file", s.path, err)
	}
	return File{
		Path:    s.path,
		Records: s.records,
		Bytes:   s.bytes,
		Digest:  s.digest.Sum64(),
	}, nil
}

// Abort closes and removes the temp file. Safe to call after Close.
func (s *Stream) Abort() {
	if s.closed {
		return
	}
	s.closed = true
	s.file.Close()
	os.Remove(s.tmpPath)
}
