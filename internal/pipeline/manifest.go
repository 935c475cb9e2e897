package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
)

// ManifestName is the file written into a kept run directory.
const ManifestName = "manifest.yaml"

// Manifest describes the artifacts of a kept run so that they can be
// inspected or merged again later.
type Manifest struct {
	RunID      string           `yaml:"runId"`
	Input      string           `yaml:"input"`
	Capacity   int              `yaml:"capacity"`
	MaxRecords int              `yaml:"maxRecords"`
	CreatedAt  time.Time        `yaml:"createdAt"`
	RunDir     string           `yaml:"runDir"`
	Partitions []partition.File `yaml:"partitions"`
	Merge      partition.File   `yaml:"merge"`
	TopK       []record.Record  `yaml:"topK"`
	Timings    Timings          `yaml:"timings"`
}

func (p *Pipeline) manifest(res *Result) Manifest {
	return Manifest{
		RunID:      res.RunID,
		Input:      res.Input,
		Capacity:   p.cfg.Capacity,
		MaxRecords: p.cfg.MaxRecords,
		CreatedAt:  p.now().UTC(),
		RunDir:     res.RunDir,
		Partitions: res.Partitions,
		Merge:      res.Merge,
		TopK:       res.TopK,
		Timings:    res.Timings,
	}
}

func writeManifest(m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(m.RunDir, ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.New(apperrors.ErrIOFailure, "writing manifest", path, err)
	}
	return nil
}

// LoadManifest reads the manifest of a kept run.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, apperrors.New(apperrors.ErrInputNotFound, "reading manifest", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}

// Remerge merges the partitions listed in m again and returns the top k.
// Partition digests are verified as the files are read, so a file changed
// since the run fails with ErrMalformedPartitionRecord.
func Remerge(ctx context.Context, m Manifest, k int) ([]record.Record, error) {
	out, err := mergeSelect(ctx, m.Partitions, k, nil)
	if err != nil {
		return nil, err
	}
	return out.topK, nil
}
