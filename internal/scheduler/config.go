package scheduler

import (
	"strings"
	"time"

	appconfig "github.com/satgate/satgate/internal/config"
)

// Config tunes the background maintenance loop.
type Config struct {
	// RunInterval is the pause between maintenance passes.
	RunInterval time.Duration

	// EnabledJobs whitelists jobs by name. Empty means all jobs run.
	EnabledJobs []string

	// SweepInterval throttles the payout sweep so it does not fire on
	// every pass. Expiry checks still run each pass.
	SweepInterval time.Duration

	// SweepLockTTL bounds how long the cross-instance sweep lock is held.
	SweepLockTTL time.Duration
}

// DefaultConfig returns the scheduler defaults used when no overrides
// are present.
func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		SweepInterval: time.Hour,
		SweepLockTTL:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = def.RunInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.SweepLockTTL <= 0 {
		c.SweepLockTTL = def.SweepLockTTL
	}
	return c
}

// ProvideConfig derives the scheduler config from the application
// configuration.
func ProvideConfig(cfg appconfig.Config) Config {
	out := Config{
		RunInterval:   time.Duration(cfg.SchedulerIntervalSeconds) * time.Second,
		SweepInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
	}
	if jobs := strings.TrimSpace(cfg.SchedulerJobs); jobs != "" {
		for _, name := range strings.Split(jobs, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.EnabledJobs = append(out.EnabledJobs, name)
			}
		}
	}
	return out.withDefaults()
}
