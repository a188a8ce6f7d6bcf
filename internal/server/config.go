package server

import (
	"time"

	"github.com/agentstation/appgen/pkg/constants"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings. The websocket origin check follows the same list.
	CORSEnabled bool
	CORSOrigins []string

	// Authentication settings
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// Performance settings
	RateLimit int // Requests per minute per IP (0 to disable)
	CacheTTL  time.Duration

	// Runs
	MaxConcurrentRuns int

	// Subscriptions
	PingPeriod time.Duration
	PongWait   time.Duration

	// HTTP timeouts. WriteTimeout does not apply to hijacked websocket
	// connections; SSE streams clear their own deadline per write.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Features
	MetricsEnabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:              constants.DefaultHost,
		Port:              constants.DefaultPort,
		PathPrefix:        constants.DefaultPathPrefix,
		CORSEnabled:       false,
		CORSOrigins:       []string{},
		AuthEnabled:       false,
		AuthHeader:        "X-API-Key",
		RateLimit:         100,
		CacheTTL:          constants.CacheTTL,
		MaxConcurrentRuns: constants.MaxConcurrentRuns,
		PingPeriod:        constants.PingPeriod,
		PongWait:          constants.PongWait,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		MetricsEnabled:    true,
	}
}
