// Package middleware provides HTTP middleware components for the search core API.
package middleware

import (
	"time"

	"github.com/newsintel/searchcore/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for two tiers:
//   - Global: applied to all requests
//   - Per-client: applied per caller, keyed by remote address
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 x rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS int // Default: 100
	ClientRPS int // Default: 20

	// Optional burst capacity overrides (0 = compute automatically as 2 x rate)
	GlobalBurst int // Default: 0 (computed as 2 x GlobalRPS)
	ClientBurst int // Default: 0 (computed as 2 x ClientRPS)

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 10,000
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
//
// Default burst capacity: 2 x rate (allows a 2-second burst)
// Default cleanup: every 5 minutes, removes clients idle >1 hour
// Default max clients: 10,000 (prevents unbounded memory growth).
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("SEARCHCORE_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("SEARCHCORE_CLIENT_RPS", defaultClientRPS),

		GlobalBurst: config.GetEnvInt("SEARCHCORE_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("SEARCHCORE_CLIENT_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"SEARCHCORE_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("SEARCHCORE_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:  config.GetEnvInt("SEARCHCORE_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
