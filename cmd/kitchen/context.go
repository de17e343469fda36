package main

import (
	"strings"
	"sync"

	"kitchen/internal/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the batch job configuration once. An explicit path
// argument (from a positional command argument) wins over the flag.
func (c *commandContext) ensureConfig(path string) (*config.Config, error) {
	c.configOnce.Do(func() {
		if strings.TrimSpace(path) == "" && c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}
