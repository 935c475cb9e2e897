package merger

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
)

type memSource struct {
	recs    []record.Record
	closed  int
	failAt  int
	advance int
}

func newMemSource(recs ...record.Record) *memSource {
	return &memSource{recs: recs, failAt: -1}
}

func (s *memSource) Peek() record.Record {
	if len(s.recs) == 0 {
		return record.Record{}
	}
	return s.recs[0]
}

func (s *memSource) Advance() error {
	s.advance++
	if s.advance == s.failAt {
		return errors.New("read failed")
	}
	if len(s.recs) > 0 {
		s.recs = s.recs[1:]
	}
	return nil
}

func (s *memSource) Empty() bool  { return len(s.recs) == 0 }
func (s *memSource) Close() error { s.closed++; return nil }

func mergeAll(t *testing.T, sources ...Source) ([]record.Record, Stats) {
	t.Helper()
	m, err := New(sources)
	require.NoError(t, err)
	out, err := record.Collect(m)
	require.NoError(t, err)
	return out, m.Stats()
}

func TestMergeZeroSources(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	_, err = m.Next()
	assert.Equal(t, io.EOF, err)
	_, err = m.Next()
	assert.Equal(t, io.EOF, err, "EOF is sticky")
}

func TestMergeSingleSourcePassThrough(t *testing.T) {
	src := newMemSource(
		record.Record{Item: "a", Count: 2},
		record.Record{Item: "b", Count: 1},
		record.Record{Item: "c", Count: 7},
	)
	out, stats := mergeAll(t, src)
	assert.Equal(t, []record.Record{{"a", 2}, {"b", 1}, {"c", 7}}, out)
	assert.Equal(t, int64(0), stats.Coalesced)
	assert.Equal(t, int64(0), stats.OutOfOrder)
	assert.Equal(t, 1, src.closed, "drained source is closed exactly once")
}

func TestMergeCoalescesAcrossSources(t *testing.T) {
	a := newMemSource(record.Record{"apple", 1}, record.Record{"kiwi", 2}, record.Record{"pear", 3})
	b := newMemSource(record.Record{"apple", 4}, record.Record{"banana", 1})
	c := newMemSource(record.Record{"kiwi", 5}, record.Record{"pear", 1}, record.Record{"zucchini", 9})
	empty := newMemSource()

	out, stats := mergeAll(t, a, b, empty, c)

	assert.Equal(t, []record.Record{
		{"apple", 5},
		{"banana", 1},
		{"kiwi", 7},
		{"pear", 4},
		{"zucchini", 9},
	}, out)
	assert.Equal(t, 4, stats.Sources)
	assert.Equal(t, int64(8), stats.Consumed)
	assert.Equal(t, int64(5), stats.Emitted)
	assert.Equal(t, int64(3), stats.Coalesced)
	for _, s := range []*memSource{a, b, c, empty} {
		assert.Equal(t, 1, s.closed)
	}
}

func TestMergeEmptyStringItem(t *testing.T) {
	a := newMemSource(record.Record{"", 2}, record.Record{"a", 1})
	b := newMemSource(record.Record{"", 3})
	out, _ := mergeAll(t, a, b)
	assert.Equal(t, []record.Record{{"", 5}, {"a", 1}}, out)
}

func TestMergeMatchesReferenceAggregation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		reference := make(map[string]int64)
		var sources []Source
		numSources := rng.Intn(8)
		for s := 0; s < numSources; s++ {
			counts := make(map[string]int64)
			for i := rng.Intn(50); i > 0; i-- {
				item := fmt.Sprintf("item-%02d", rng.Intn(40))
				counts[item]++
				reference[item]++
			}
			recs := make([]record.Record, 0, len(counts))
			for item, c := range counts {
				recs = append(recs, record.Record{Item: item, Count: c})
			}
			sort.Slice(recs, func(i, j int) bool { return recs[i].Item < recs[j].Item })
			sources = append(sources, newMemSource(recs...))
		}

		out, stats := mergeAll(t, sources...)

		require.Len(t, out, len(reference), "round %d", round)
		for i, r := range out {
			assert.Equal(t, reference[r.Item], r.Count, "round %d item %q", round, r.Item)
			if i > 0 {
				assert.Less(t, out[i-1].Item, r.Item, "round %d", round)
			}
		}
		assert.Equal(t, int64(0), stats.OutOfOrder)
	}
}

func TestMergeUnsortedSourceProducesDuplicate(t *testing.T) {
	unsorted := newMemSource(record.Record{"b", 1}, record.Record{"a", 1})
	sorted := newMemSource(record.Record{"a", 1}, record.Record{"b", 1})

	out, stats := mergeAll(t, unsorted, sorted)

	seen := make(map[string]int)
	for _, r := range out {
		seen[r.Item]++
	}
	assert.Greater(t, len(out), len(seen), "expected a duplicate item, got %v", out)
	assert.Greater(t, stats.OutOfOrder, int64(0))

	// The failure mode is deterministic.
	again, _ := mergeAll(t,
		newMemSource(record.Record{"b", 1}, record.Record{"a", 1}),
		newMemSource(record.Record{"a", 1}, record.Record{"b", 1}),
	)
	assert.Equal(t, out, again)
}

func TestMergeAdvanceErrorPropagates(t *testing.T) {
	bad := newMemSource(record.Record{"a", 1}, record.Record{"b", 1})
	bad.failAt = 1
	m, err := New([]Source{bad})
	require.NoError(t, err)

	_, err = record.Collect(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read failed")
	require.NoError(t, m.Close())
	assert.Equal(t, 1, bad.closed)
}

type sliceTee struct{ recs []record.Record }

func (s *sliceTee) Append(r record.Record) error {
	s.recs = append(s.recs, r)
	return nil
}

func TestMergeTeeSeesEveryEmittedRecord(t *testing.T) {
	m, err := New([]Source{
		newMemSource(record.Record{"a", 1}, record.Record{"c", 1}),
		newMemSource(record.Record{"a", 1}, record.Record{"b", 1}),
	})
	require.NoError(t, err)
	tee := &sliceTee{}
	m.SetTee(tee)

	out, err := record.Collect(m)
	require.NoError(t, err)
	assert.Equal(t, out, tee.recs)
}

func writePartitions(t *testing.T, w *partition.Writer, batches ...[]record.Record) []partition.File {
	t.Helper()
	files := make([]partition.File, 0, len(batches))
	for _, b := range batches {
		f, err := w.Write(b)
		require.NoError(t, err)
		files = append(files, f)
	}
	return files
}

func mergeFiles(t *testing.T, files []partition.File) []record.Record {
	t.Helper()
	sources := make([]Source, 0, len(files))
	for _, f := range files {
		c, err := partition.OpenCursor(f)
		require.NoError(t, err)
		sources = append(sources, c)
	}
	out, _ := mergeAll(t, sources...)
	return out
}

func TestMergePartitionFilesIsIdempotent(t *testing.T) {
	w := partition.NewWriter(t.TempDir())
	files := writePartitions(t, w,
		[]record.Record{{"a", 1}, {"b", 2}, {"d", 1}},
		[]record.Record{{"b", 3}, {"c", 1}},
		[]record.Record{{"a", 4}, {"d", 2}, {"e", 1}},
	)

	first := mergeFiles(t, files)
	second := mergeFiles(t, files)

	assert.Equal(t, []record.Record{{"a", 5}, {"b", 5}, {"c", 1}, {"d", 3}, {"e", 1}}, first)
	assert.Equal(t, first, second)
}

func BenchmarkMerge(b *testing.B) {
	const sources, perSource = 16, 2000
	data := make([][]record.Record, sources)
	for s := range data {
		for i := 0; i < perSource; i++ {
			data[s] = append(data[s], record.Record{Item: fmt.Sprintf("item-%06d", i*sources+s%4), Count: 1})
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		srcs := make([]Source, sources)
		for s := range data {
			srcs[s] = newMemSource(data[s]...)
		}
		m, err := New(srcs)
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := m.Next(); err != nil {
				if err == io.EOF {
					break
				}
				b.Fatal(err)
			}
		}
	}
}
