package reconciler

import (
	"time"

	"github.com/creditrail/creditrail/internal/config"
)

// Config controls reconciler cadence and sweep sizing.
type Config struct {
	RunInterval time.Duration
	GraceWindow time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 24 * time.Hour,
		GraceWindow: 72 * time.Hour,
		BatchSize:   200,
		JobTimeout:  10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = defaults.GraceWindow
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.ReconcilerInterval,
		GraceWindow: cfg.ReconcilerGraceWindow,
		BatchSize:   cfg.ReconcilerBatchSize,
	}.withDefaults()
}
