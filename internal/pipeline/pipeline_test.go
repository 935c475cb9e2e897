package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/metrics"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newPipeline(t *testing.T, cfg config.PipelineConfig) *Pipeline {
	t.Helper()
	p, err := New(cfg, nil, nil)
	require.NoError(t, err)
	return p
}

func TestRunEndToEnd(t *testing.T) {
	input := writeInput(t, "a|b|a\nb|c\na\n")
	p := newPipeline(t, config.PipelineConfig{Capacity: 2})

	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []record.Record{{Item: "a", Count: 3}, {Item: "b", Count: 2}}, res.TopK)
	assert.Equal(t, int64(3), res.Lines)
	assert.Equal(t, int64(6), res.Observed)
	assert.Equal(t, int64(3), res.Distinct)
	assert.Len(t, res.Partitions, 1)
	assert.False(t, res.Kept)
	assert.NoDirExists(t, res.RunDir)
	assert.NoDirExists(t, filepath.Join(filepath.Dir(input), DumpDirName), "default dump directory is removed")
}

func TestRunCountsEmptySegments(t *testing.T) {
	input := writeInput(t, "a||b\n")
	p := newPipeline(t, config.PipelineConfig{Capacity: 3})

	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	assert.ElementsMatch(t, []record.Record{
		{Item: "", Count: 1},
		{Item: "a", Count: 1},
		{Item: "b", Count: 1},
	}, res.TopK)
}

func TestRunTrimsItemsAndHandlesCRLF(t *testing.T) {
	input := writeInput(t, "  hello world | foo\r\nfoo|hello world\r\nbar")
	p := newPipeline(t, config.PipelineConfig{Capacity: 2})

	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []record.Record{{Item: "foo", Count: 2}, {Item: "hello world", Count: 2}}, res.TopK)
	assert.Equal(t, int64(3), res.Lines)
}

func TestRunFlushesAtThreshold(t *testing.T) {
	input := writeInput(t, "a\nb\nc\nd\ne\nf\ng\n")
	p := newPipeline(t, config.PipelineConfig{
		Capacity:      7,
		MaxRecords:    2,
		WorkDir:       t.TempDir(),
		KeepArtifacts: true,
	})

	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)

	// Three distinct items fit before the fourth spills them.
	require.Len(t, res.Partitions, 3)
	assert.Equal(t, 3, res.Partitions[0].Records)
	assert.Equal(t, 3, res.Partitions[1].Records)
	assert.Equal(t, 1, res.Partitions[2].Records)
	for i, f := range res.Partitions {
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.FileExists(t, f.Path)
	}
	assert.Len(t, res.TopK, 7)
	assert.Equal(t, "a", res.TopK[0].Item, "equal counts keep merge order")
}

func TestRunEmptyInput(t *testing.T) {
	input := writeInput(t, "")
	p := newPipeline(t, config.PipelineConfig{Capacity: 5})

	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, res.TopK)
	assert.Empty(t, res.Partitions)
	assert.Equal(t, int64(0), res.Lines)
}

func TestRunMissingInputCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	progress := &health.Progress{}
	p, err := New(config.PipelineConfig{Capacity: 1}, nil, progress)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInputNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, apperrors.ExitInputNotFound, apperrors.ExitCode(err))
	assert.NoDirExists(t, filepath.Join(dir, DumpDirName))
	assert.Equal(t, health.StageFailed, progress.Stage())

	_, err = p.Run(context.Background(), dir)
	assert.ErrorIs(t, err, apperrors.ErrInputNotFound, "a directory is not an input")
}

func TestNewRejectsBadCapacity(t *testing.T) {
	_, err := New(config.PipelineConfig{Capacity: 0}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestKeepArtifactsWritesManifest(t *testing.T) {
	input := writeInput(t, "x|y|x\ny|z\nx\nw\n")
	p := newPipeline(t, config.PipelineConfig{
		Capacity:      2,
		MaxRecords:    1,
		WorkDir:       t.TempDir(),
		KeepArtifacts: true,
	})

	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	require.True(t, res.Kept)
	assert.FileExists(t, res.Merge.Path)

	m, err := LoadManifest(filepath.Join(res.RunDir, ManifestName))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, m.RunID)
	assert.Equal(t, 2, m.Capacity)
	assert.Equal(t, res.Partitions, m.Partitions)
	assert.Equal(t, res.TopK, m.TopK)

	again, err := Remerge(context.Background(), m, 2)
	require.NoError(t, err)
	assert.Equal(t, res.TopK, again, "merging the same partitions twice gives the same answer")

	merged := readFile(t, res.Merge)
	assert.Equal(t, []record.Record{
		{Item: "w", Count: 1},
		{Item: "x", Count: 3},
		{Item: "y", Count: 2},
		{Item: "z", Count: 1},
	}, merged)
}

func readFile(t *testing.T, f partition.File) []record.Record {
	t.Helper()
	c, err := partition.OpenCursor(f)
	require.NoError(t, err)
	defer c.Close()
	var out []record.Record
	for !c.Empty() {
		out = append(out, c.Peek())
		require.NoError(t, c.Advance())
	}
	return out
}

func TestRemergeRejectsCorruptPartition(t *testing.T) {
	input := writeInput(t, "a\nb\nc\nd\n")
	p := newPipeline(t, config.PipelineConfig{
		Capacity:      2,
		MaxRecords:    1,
		WorkDir:       t.TempDir(),
		KeepArtifacts: true,
	})
	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	require.NotEmpty(t, res.Partitions)

	require.NoError(t, os.WriteFile(res.Partitions[0].Path, []byte("not a record\n"), 0644))
	m, err := LoadManifest(filepath.Join(res.RunDir, ManifestName))
	require.NoError(t, err)

	_, err = Remerge(context.Background(), m, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedPartitionRecord)
	assert.Equal(t, apperrors.ExitCorruptPartition, apperrors.ExitCode(err))
}

func TestRunMatchesReferenceCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	want := map[string]int64{}
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(4)
		items := make([]string, n)
		for j := range items {
			items[j] = fmt.Sprintf("s%03d", rng.Intn(300))
			want[items[j]]++
		}
		b.WriteString(strings.Join(items, " | "))
		b.WriteByte('\n')
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p, err := New(config.PipelineConfig{Capacity: 10, MaxRecords: 40, WorkDir: t.TempDir()}, m, nil)
	require.NoError(t, err)

	res, err := p.RunReader(context.Background(), strings.NewReader(b.String()), "generated")
	require.NoError(t, err)

	ref := make([]record.Record, 0, len(want))
	for item, count := range want {
		ref = append(ref, record.Record{Item: item, Count: count})
	}
	sort.Slice(ref, func(i, j int) bool {
		if ref[i].Count != ref[j].Count {
			return ref[i].Count > ref[j].Count
		}
		return ref[i].Item < ref[j].Item
	})
	assert.Equal(t, ref[:10], res.TopK)
	assert.Equal(t, int64(len(want)), res.Distinct)
	assert.Greater(t, len(res.Partitions), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(len(res.Partitions)), testutil.ToFloat64(m.PartitionsFlushedTotal.WithLabelValues("success")))
	assert.Equal(t, float64(res.Observed), testutil.ToFloat64(m.ItemsObservedTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MergeOutOfOrderTotal))
}

func TestRunReaderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	workDir := t.TempDir()
	p := newPipeline(t, config.PipelineConfig{Capacity: 1, WorkDir: workDir})

	res, err := p.RunReader(ctx, strings.NewReader("a\nb\n"), "cancelled")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a failed run leaves its directory for diagnosis")
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"a", []string{"a"}},
		{"a|b", []string{"a", "b"}},
		{" a | b ", []string{"a", "b"}},
		{"a||b", []string{"a", "", "b"}},
		{"a|", []string{"a", ""}},
		{"", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLine(tt.line))
		})
	}
}

func TestNewRunIDIsStable(t *testing.T) {
	p := newPipeline(t, config.PipelineConfig{Capacity: 1})
	at := p.now()
	assert.Equal(t, NewRunID("in", at), NewRunID("in", at))
	assert.NotEqual(t, NewRunID("in", at), NewRunID("other", at))
	assert.Len(t, NewRunID("in", at), 16)
}

func BenchmarkRunReader(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&sb, "s%d|s%d|s%d\n", i%97, i%1013, i%4099)
	}
	input := sb.String()
	p, err := New(config.PipelineConfig{Capacity: 10, MaxRecords: 500, WorkDir: b.TempDir()}, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.RunReader(context.Background(), strings.NewReader(input), "bench"); err != nil {
			b.Fatal(err)
		}
	}
}
