package scheduler

import (
	"time"

	"github.com/smallbiznis/suavescribe/internal/config"
)

const (
	JobBillingSweep   = "billing_sweep"
	JobContractResync = "contract_resync"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	RunInterval time.Duration
	// JobTimeout bounds a single job over all shops.
	JobTimeout time.Duration
	// DailyLeaseTTL outlives a UTC day so a replica that starts late cannot repeat the
	// same day's work.
	DailyLeaseTTL time.Duration
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   5 * time.Minute,
		JobTimeout:    10 * time.Minute,
		DailyLeaseTTL: 26 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		EnabledJobs: cfg.Scheduler.Jobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.DailyLeaseTTL <= 0 {
		c.DailyLeaseTTL = defaults.DailyLeaseTTL
	}
	return c
}
