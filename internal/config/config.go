package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// StageKind discriminates the two pipeline stage backends.
type StageKind string

const (
	// StageProcess runs the app as a dockerized command-line process.
	StageProcess StageKind = "process"
	// StageEndpoint calls the app as an already-running web service.
	StageEndpoint StageKind = "endpoint"
)

// Stage describes one pipeline step. Exactly one of Image or Endpoint is set,
// matching Kind. Params is an opaque key-value payload forwarded verbatim to
// the app.
type Stage struct {
	Kind     StageKind      `toml:"kind"`
	Image    string         `toml:"image"`
	Endpoint string         `toml:"endpoint"`
	GPUs     string         `toml:"gpus"`
	Params   map[string]any `toml:"params"`
}

// PostProc names one post-processing procedure plus its opaque options.
// Artifacts lists the artifact subdirectories the procedure produces.
type PostProc struct {
	Name      string         `toml:"name"`
	Artifacts []string       `toml:"artifacts"`
	Command   string         `toml:"command"`
	Options   map[string]any `toml:"options"`
}

// Paths contains directory configuration for a batch job. LocalBase applies
// to paths the engine touches directly; MountBase is the docker-visible form
// of the same tree (they differ under WSL-style setups).
type Paths struct {
	Manifest     string `toml:"manifest"`
	ResultsDir   string `toml:"results_dir"`
	MediaDir     string `toml:"media_dir"`
	MMIFDir      string `toml:"mmif_dir"`
	LogsDir      string `toml:"logs_dir"`
	ArtifactsDir string `toml:"artifacts_dir"`
	LocalBase    string `toml:"local_base"`
	MountBase    string `toml:"mount_base"`
}

// Job contains per-batch behaviour switches: slicing, idempotence policy,
// cleanup policy, and concurrency.
type Job struct {
	MediaRequired       bool  `toml:"media_required"`
	JustGetMedia        bool  `toml:"just_get_media"`
	StartAfterItem      int   `toml:"start_after_item"`
	EndAfterItem        int   `toml:"end_after_item"`
	IncludeOnlyItems    []int `toml:"include_only_items"`
	OverwriteMMIF       bool  `toml:"overwrite_mmif"`
	KeepMMIFs           []int `toml:"keep_mmifs"`
	CleanupMediaPerItem bool  `toml:"cleanup_media_per_item"`
	CleanupBeyondItem   int   `toml:"cleanup_beyond_item"`
	Concurrency         int   `toml:"concurrency"`
	StageTimeoutSeconds int   `toml:"stage_timeout_seconds"`
}

// Media contains acquisition settings for items sourced from SonyCi.
type Media struct {
	CiURLCommand     string `toml:"ci_url_command"`
	DownloadLimitMiB int    `toml:"download_limit_mib"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Runtime contains settings for the dockerized process backend.
type Runtime struct {
	DockerBinary string   `toml:"docker_binary"`
	Entrypoint   []string `toml:"entrypoint"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for one batch job.
//
// Configuration sections by subsystem:
//   - ID/Name: batch identity used for artifact naming and run-log scoping
//   - Paths: manifest location, results/media/mmif/logs/artifacts directories
//   - Job: slicing, idempotence, cleanup, and concurrency policy
//   - Stages: ordered pipeline of app invocations (process or endpoint)
//   - PostProcs: named post-processing procedures over the final document
//   - Media: SonyCi acquisition settings
//   - Runtime: docker invocation settings
//   - Logging: log format and level
type Config struct {
	ID        string     `toml:"id"`
	Name      string     `toml:"name"`
	Paths     Paths      `toml:"paths"`
	Job       Job        `toml:"job"`
	Stages    []Stage    `toml:"stage"`
	PostProcs []PostProc `toml:"post_proc"`
	Media     Media      `toml:"media"`
	Runtime   Runtime    `toml:"runtime"`
	Logging   Logging    `toml:"logging"`
}

// Load parses, normalizes, and validates a job configuration file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("job configuration path required")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	file, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnsureDirectories creates the output directories a batch run writes into.
// The media and results directories must already exist; they typically live
// on external storage and silently creating them hides mount problems.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ResultsDir, c.Paths.MediaDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("required directory missing: %q: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("required path is not a directory: %q", dir)
		}
	}
	created := []string{c.Paths.MMIFDir, c.Paths.LogsDir}
	if len(c.PostProcs) > 0 {
		created = append(created, c.Paths.ArtifactsDir)
		for _, proc := range c.PostProcs {
			for _, arttype := range proc.Artifacts {
				created = append(created, filepath.Join(c.Paths.ArtifactsDir, arttype))
			}
		}
	}
	for _, dir := range created {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MountPath translates a local path into its docker-visible form by swapping
// the local base prefix for the mount base prefix.
func (c *Config) MountPath(localPath string) string {
	if c.Paths.MountBase == "" || c.Paths.LocalBase == "" {
		return localPath
	}
	if strings.HasPrefix(localPath, c.Paths.LocalBase) {
		return c.Paths.MountBase + strings.TrimPrefix(localPath, c.Paths.LocalBase)
	}
	return localPath
}

// StageTimeout returns the per-stage timeout, or zero when unconfigured.
func (c *Config) StageTimeout() time.Duration {
	if c.Job.StageTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Job.StageTimeoutSeconds) * time.Second
}

// MediaTimeout returns the per-item media acquisition timeout.
func (c *Config) MediaTimeout() time.Duration {
	if c.Media.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Media.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample job configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
