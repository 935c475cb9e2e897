package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ConsoleSink prints the report as plain text.
type ConsoleSink struct {
	w io.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Name() string { return "console" }

// Publish writes a header followed by one line per item, most frequent
// first.
func (s *ConsoleSink) Publish(ctx context.Context, r Report) error {
	bw := bufio.NewWriter(s.w)
	fmt.Fprintf(bw, "%d-most frequent sentences:\n", r.Capacity)
	fmt.Fprintln(bw, strings.Repeat("-", 72))
	for _, rec := range r.Items {
		fmt.Fprintf(bw, "Sentence: %s | Frequency: %d\n", rec.Item, rec.Count)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
