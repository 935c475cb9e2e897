// Command topkgen writes a synthetic sentence file for exercising topk on
// inputs much larger than its in-memory threshold. Sentence frequencies
// follow a Zipf distribution and the true top entries are printed so a
// topk run over the file can be checked.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"
)

type Config struct {
	Lines   int
	PerLine int
	Vocab   int
	Skew    float64
	Seed    int64
	Top     int
}

type Stats struct {
	Lines    int
	Items    int
	Bytes    int64
	Counts   map[string]int64
	Duration time.Duration
}

var words = []string{
	"distributed", "systems", "search", "engine", "frequent", "sentence",
	"memory", "partition", "merge", "heap", "disk", "stream",
	"external", "sort", "count", "record", "cursor", "batch",
}

func main() {
	out := flag.String("out", "sentences.txt", "output file")
	lines := flag.Int("lines", 100000, "number of lines to write")
	perLine := flag.Int("per-line", 3, "maximum sentences per line")
	vocab := flag.Int("vocab", 5000, "number of distinct sentences")
	skew := flag.Float64("skew", 1.2, "Zipf exponent, must be > 1")
	seed := flag.Int64("seed", 1, "random seed")
	top := flag.Int("top", 10, "how many of the true most frequent sentences to print")
	flag.Parse()

	cfg := Config{
		Lines:   *lines,
		PerLine: *perLine,
		Vocab:   *vocab,
		Skew:    *skew,
		Seed:    *seed,
		Top:     *top,
	}
	if cfg.Lines <= 0 || cfg.PerLine <= 0 || cfg.Vocab <= 0 || cfg.Skew <= 1 {
		fmt.Fprintln(os.Stderr, "lines, per-line and vocab must be positive and skew greater than 1")
		os.Exit(2)
	}

	fmt.Println("=== Sentence Input Generator ===")
	fmt.Printf("Output:     %s\n", *out)
	fmt.Printf("Lines:      %d\n", cfg.Lines)
	fmt.Printf("Per line:   1-%d\n", cfg.PerLine)
	fmt.Printf("Vocabulary: %d distinct\n", cfg.Vocab)
	fmt.Printf("Skew:       %.2f\n", cfg.Skew)
	fmt.Println()

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating output: %v\n", err)
		os.Exit(1)
	}
	stats, err := generate(f, cfg)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "writing output: %v\n", err)
		os.Exit(1)
	}
	printReport(os.Stdout, stats, cfg.Top)
}

// sentence builds the deterministic text of vocabulary entry i.
func sentence(i int) string {
	a := words[i%len(words)]
	b := words[(i/len(words))%len(words)]
	return fmt.Sprintf("%s %s %d", a, b, i)
}

func generate(w io.Writer, cfg Config) (*Stats, error) {
	start := time.Now()
	rng := rand.New(rand.NewSource(cfg.Seed))
	zipf := rand.NewZipf(rng, cfg.Skew, 1, uint64(cfg.Vocab-1))
	stats := &Stats{Counts: make(map[string]int64)}

	bw := bufio.NewWriterSize(w, 64*1024)
	parts := make([]string, 0, cfg.PerLine)
	for i := 0; i < cfg.Lines; i++ {
		parts = parts[:0]
		n := 1 + rng.Intn(cfg.PerLine)
		for j := 0; j < n; j++ {
			s := sentence(int(zipf.Uint64()))
			stats.Counts[s]++
			parts = append(parts, s)
		}
		line := strings.Join(parts, " | ")
		if _, err := bw.WriteString(line); err != nil {
			return nil, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return nil, err
		}
		stats.Lines++
		stats.Items += n
		stats.Bytes += int64(len(line) + 1)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

// topEntries orders counts the way topk reports them: count descending,
// then sentence ascending.
func topEntries(counts map[string]int64, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n < len(keys) {
		keys = keys[:n]
	}
	return keys
}

func printReport(w io.Writer, stats *Stats, top int) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Lines written:  %d\n", stats.Lines)
	fmt.Fprintf(w, "Sentences:      %d\n", stats.Items)
	fmt.Fprintf(w, "Distinct:       %d\n", len(stats.Counts))
	fmt.Fprintf(w, "Bytes:          %d\n", stats.Bytes)
	fmt.Fprintf(w, "Duration:       %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "=== Expected top %d ===\n", top)
	for _, s := range topEntries(stats.Counts, top) {
		fmt.Fprintf(w, "Sentence: %s | Frequency: %d\n", s, stats.Counts[s])
	}
}
