package config

import (
	"errors"
	"fmt"
	"strings"
)

const maxBatchIDLength = 72

// Validate ensures the job configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateJob(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validatePostProcs(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIdentity() error {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return errors.New("id must be set")
	}
	if len(id) > maxBatchIDLength {
		return fmt.Errorf("id must be at most %d characters", maxBatchIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '+' || r == '-':
		default:
			return fmt.Errorf("id contains invalid character %q (allowed: letters, digits, _ + -)", r)
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.Manifest) == "" {
		return errors.New("paths.manifest must be set")
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		return errors.New("paths.results_dir must be set")
	}
	if c.Job.MediaRequired && strings.TrimSpace(c.Paths.MediaDir) == "" {
		return errors.New("paths.media_dir must be set when job.media_required is true")
	}
	return nil
}

func (c *Config) validateJob() error {
	if c.Job.StartAfterItem < 0 {
		return errors.New("job.start_after_item must not be negative")
	}
	for _, n := range c.Job.IncludeOnlyItems {
		if n < 1 {
			return fmt.Errorf("job.include_only_items entries are 1-based ordinals, got %d", n)
		}
	}
	for _, k := range c.Job.KeepMMIFs {
		if k < 0 || k > len(c.Stages) {
			return fmt.Errorf("job.keep_mmifs index %d is outside stage range 0..%d", k, len(c.Stages))
		}
	}
	if c.Job.StageTimeoutSeconds < 0 {
		return errors.New("job.stage_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateStages() error {
	if c.Job.JustGetMedia {
		return nil
	}
	if len(c.Stages) == 0 {
		return errors.New("at least one [[stage]] is required unless job.just_get_media is set")
	}
	for i, stage := range c.Stages {
		switch stage.Kind {
		case StageProcess:
			if stage.Image == "" {
				return fmt.Errorf("stage %d: image must be set for kind %q", i+1, StageProcess)
			}
		case StageEndpoint:
			if stage.Endpoint == "" {
				return fmt.Errorf("stage %d: endpoint must be set for kind %q", i+1, StageEndpoint)
			}
			if key, ok := firstNestedParam(stage.Params); ok {
				return fmt.Errorf("stage %d: parameter %q is nested; endpoint stages cannot transmit nested parameters, use a process stage", i+1, key)
			}
		default:
			return fmt.Errorf("stage %d: unknown kind %q", i+1, stage.Kind)
		}
	}
	return nil
}

func (c *Config) validatePostProcs() error {
	for i, proc := range c.PostProcs {
		if strings.TrimSpace(proc.Name) == "" {
			return fmt.Errorf("post_proc %d: name must be set", i+1)
		}
	}
	return nil
}

func firstNestedParam(params map[string]any) (string, bool) {
	for key, value := range params {
		switch value.(type) {
		case map[string]any, []any:
			return key, true
		}
	}
	return "", false
}
