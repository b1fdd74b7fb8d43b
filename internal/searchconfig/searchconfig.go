// Package searchconfig assembles the domain-level configuration the HTTP
// layer doesn't own: storage DSN, the event Journal's buffer/retention,
// the sweeper's timeout dimensions, and the AI orchestrator's retry
// budget. Built on internal/config's generic env-var getters, the same
// way internal/api/config.go assembles ServerConfig.
package searchconfig

import (
	"time"

	"github.com/newsintel/searchcore/internal/config"
	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/sweeper"
)

// Config is the full set of domain-level knobs a deployment may tune via
// environment variables. Every field has a sensible zero-downtime
// default so an empty environment still produces a working service.
type Config struct {
	DatabaseURL string

	EventBus eventbus.Config
	Sweeper  sweeper.Config

	AiMaxRetries int
}

// Load reads Config from the environment, falling back to defaults for
// anything unset.
func Load() Config {
	return Config{
		DatabaseURL: config.GetEnvStr("SEARCHCORE_DATABASE_URL", ""),

		EventBus: eventbus.Config{
			BufferSize:      config.GetEnvInt("SEARCHCORE_EVENT_BUFFER_SIZE", eventbus.DefaultBufferSize),
			RetentionWindow: config.GetEnvDuration("SEARCHCORE_EVENT_RETENTION_WINDOW", eventbus.DefaultRetentionWindow),
			SweepInterval:   config.GetEnvDuration("SEARCHCORE_EVENT_SWEEP_INTERVAL", eventbus.DefaultSweepInterval),
		},

		Sweeper: sweeper.Config{
			Interval:             config.GetEnvDuration("SEARCHCORE_SWEEPER_INTERVAL", sweeper.DefaultInterval),
			RetentionWindow:      config.GetEnvDuration("SEARCHCORE_RETENTION_WINDOW", sweeper.DefaultRetentionWindow),
			OverallSearchTimeout: config.GetEnvDuration("SEARCHCORE_SEARCH_OVERALL_TIMEOUT", 30*time.Second),
			OverallAiTimeout:     config.GetEnvDuration("SEARCHCORE_DEEP_OVERALL_TIMEOUT", 10*time.Minute),
			PerSubTaskTimeout:    config.GetEnvDuration("SEARCHCORE_DEEP_PER_SUBTASK_TIMEOUT", 2*time.Minute),
		},

		AiMaxRetries: config.GetEnvInt("SEARCHCORE_AI_MAX_RETRIES", 2),
	}
}
