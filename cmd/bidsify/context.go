package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bidsify/internal/config"
	"bidsify/internal/history"
	"bidsify/internal/logging"
)

type globalFlags struct {
	config    string
	subject   string
	outputDir string
	sessions  []string
	logLevel  string
}

type commandContext struct {
	flags *globalFlags

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		overrides, err := c.overrides()
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Apply(overrides); err != nil {
			c.configErr = err
			return
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) overrides() (config.Overrides, error) {
	o := config.Overrides{
		Subject:   c.flags.subject,
		OutputDir: c.flags.outputDir,
	}
	for _, raw := range c.flags.sessions {
		s, err := config.ParseSessionFlag(raw)
		if err != nil {
			return config.Overrides{}, err
		}
		o.Sessions = append(o.Sessions, s)
	}
	return o, nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withHistory opens the history store for fn. A nil store is passed when
// history is disabled.
func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fn(nil)
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func (c *commandContext) requireHistory(fn func(*history.Store) error) error {
	return c.withHistory(func(store *history.Store) error {
		if store == nil {
			return errors.New("run history is disabled (history.enabled = false)")
		}
		return fn(store)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
