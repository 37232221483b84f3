package tasks

import (
	"time"

	"github.com/mrlokans/library/internal/config"
)

// Config sizes the worker pool. Attempts, backoff, timeout and retention
// are set per task type in its QueueConfig.
type Config struct {
	Workers int
	// ReleaseAfter hands a claimed task back to the queue if its worker
	// has not finished by then.
	ReleaseAfter time.Duration
	// CleanupInterval is how often finished tasks past their retention
	// are purged.
	CleanupInterval time.Duration
}

// DefaultConfig runs two workers.
func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ReleaseAfter:    15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

// FromConfig overlays the application settings on DefaultConfig.
func FromConfig(cfg config.Tasks) Config {
	out := DefaultConfig()
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.ReleaseAfter > 0 {
		out.ReleaseAfter = cfg.ReleaseAfter
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = cfg.CleanupInterval
	}
	return out
}
