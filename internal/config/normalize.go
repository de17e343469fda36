package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeJob()
	c.normalizeStages()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	base := strings.TrimRight(c.Paths.LocalBase, "/\\")
	join := func(p string) string {
		if p == "" || base == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
			return p
		}
		return filepath.Join(base, p)
	}

	c.Paths.Manifest = join(c.Paths.Manifest)
	c.Paths.ResultsDir = join(c.Paths.ResultsDir)
	c.Paths.MediaDir = join(c.Paths.MediaDir)
	c.Paths.MMIFDir = join(c.Paths.MMIFDir)
	c.Paths.LogsDir = join(c.Paths.LogsDir)

	if strings.TrimSpace(c.Paths.MMIFDir) == "" && c.Paths.ResultsDir != "" {
		c.Paths.MMIFDir = filepath.Join(c.Paths.ResultsDir, defaultMMIFDirName)
	}
	if strings.TrimSpace(c.Paths.LogsDir) == "" {
		c.Paths.LogsDir = c.Paths.ResultsDir
	}
	if strings.TrimSpace(c.Paths.ArtifactsDir) == "" && c.Paths.ResultsDir != "" {
		c.Paths.ArtifactsDir = filepath.Join(c.Paths.ResultsDir, defaultArtifactsDirName)
	}

	var err error
	for name, field := range map[string]*string{
		"paths.manifest":      &c.Paths.Manifest,
		"paths.results_dir":   &c.Paths.ResultsDir,
		"paths.media_dir":     &c.Paths.MediaDir,
		"paths.mmif_dir":      &c.Paths.MMIFDir,
		"paths.logs_dir":      &c.Paths.LogsDir,
		"paths.artifacts_dir": &c.Paths.ArtifactsDir,
	} {
		if *field == "" {
			continue
		}
		if *field, err = expandPath(*field); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) normalizeJob() {
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Job.StartAfterItem < 0 {
		c.Job.StartAfterItem = 0
	}
	// end_after_item of zero means "run to the end"; a value below the start
	// collapses the slice to empty at the start boundary, like the original
	// normalization.
	if c.Job.EndAfterItem != 0 && c.Job.EndAfterItem < c.Job.StartAfterItem {
		c.Job.EndAfterItem = c.Job.StartAfterItem
	}
	if c.Job.Concurrency < 1 {
		c.Job.Concurrency = 1
	}
	if c.Job.JustGetMedia {
		c.Stages = nil
		c.PostProcs = nil
	}
}

func (c *Config) normalizeStages() {
	for i := range c.Stages {
		stage := &c.Stages[i]
		stage.Kind = StageKind(strings.ToLower(strings.TrimSpace(string(stage.Kind))))
		if stage.Kind == "" {
			if stage.Endpoint != "" && stage.Image == "" {
				stage.Kind = StageEndpoint
			} else {
				stage.Kind = StageProcess
			}
		}
		stage.Image = strings.TrimSpace(stage.Image)
		stage.Endpoint = strings.TrimSpace(stage.Endpoint)
		stage.GPUs = strings.TrimSpace(stage.GPUs)
	}
}

func (c *Config) normalizeLogging() {
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
}
