// Package testsupport provides helpers shared by package tests: batch
// configurations seeded with per-test temp directories, and canned MMIF
// content for artifact fixtures.
package testsupport

import (
	"path/filepath"
	"testing"

	"kitchen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a batch config seeded with unique temp directories per
// test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.ID = "test_batch"
	cfg.Name = "test batch"
	cfg.Paths.Manifest = filepath.Join(base, "batch.csv")
	cfg.Paths.ResultsDir = filepath.Join(base, "results")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.MMIFDir = filepath.Join(base, "results", "mmif")
	cfg.Paths.LogsDir = filepath.Join(base, "results")
	cfg.Paths.ArtifactsDir = filepath.Join(base, "results", "artifacts")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithStages appends process stages with the given images.
func WithStages(images ...string) ConfigOption {
	return func(cfg *config.Config) {
		for _, image := range images {
			cfg.Stages = append(cfg.Stages, config.Stage{
				Kind:  config.StageProcess,
				Image: image,
			})
		}
	}
}
