// Package record defines the (item, count) pair that flows through every
// stage of a run and its on-disk line format.
package record

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// Separator divides item and count in a partition line.
const Separator = ';'

var (
	errMissingSeparator = errors.New("missing separator")
	errBadCount         = errors.New("count is not a positive integer")
)

// Record is one item and the number of times it was observed.
type Record struct {
	Item  string `json:"item" yaml:"item"`
	Count int64  `json:"count" yaml:"count"`
}

// Source yields records one at a time and returns io.EOF once exhausted.
type Source interface {
	Next() (Record, error)
}

// Format renders r as a partition line without the trailing newline.
func Format(r Record) string {
	return r.Item + string(Separator) + strconv.FormatInt(r.Count, 10)
}

// AppendFormat appends the partition line for r, including the newline.
func AppendFormat(dst []byte, r Record) []byte {
	dst = append(dst, r.Item...)
	dst = append(dst, Separator)
	dst = strconv.AppendInt(dst, r.Count, 10)
	return append(dst, '\n')
}

// Parse decodes a partition line. The count follows the last separator, so
// an item that itself contains ';' still round-trips.
func Parse(line string) (Record, error) {
	idx := strings.LastIndexByte(line, Separator)
	if idx < 0 {
		return Record{}, errMissingSeparator
	}
	count, err := strconv.ParseInt(line[idx+1:], 10, 64)
	if err != nil || count < 1 {
		return Record{}, errBadCount
	}
	return Record{Item: line[:idx], Count: count}, nil
}

// Collect drains src into a slice. Intended for tests and small inputs.
func Collect(src Source) ([]Record, error) {
	var out []Record
	for {
		r, err := src.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
