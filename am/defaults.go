package am

import (
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (SCHOLAR_SERVER_PORT, ...).
const EnvPrefix = "SCHOLAR"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", defaultAllowedOrigins())
	v.SetDefault("server.requests_per_minute", 60)
	v.SetDefault("server.shutdown_timeout_seconds", int(DefaultShutdownTimeout.Seconds()))

	// Database defaults
	v.SetDefault("database.path", "scholar.db")

	// Engine defaults (used only where the rulebook file is silent)
	v.SetDefault("engine.fallback", 50.0)
	v.SetDefault("engine.resolution", 1.0)
	v.SetDefault("engine.thresholds.very_high", 85.0)
	v.SetDefault("engine.thresholds.high", 65.0)
	v.SetDefault("engine.thresholds.medium", 40.0)

	// Rulebook defaults
	v.SetDefault("rulebook.path", "")
	v.SetDefault("rulebook.watch", true)

	// Classifier defaults: disabled until an endpoint is configured
	v.SetDefault("classifier.endpoint", "")
	v.SetDefault("classifier.timeout_seconds", 15)
	v.SetDefault("classifier.requests_per_second", 2.0)
	v.SetDefault("classifier.max_retries", 3)
	v.SetDefault("classifier.block_private", false) // local model servers are the common case
	v.SetDefault("classifier.use_ranges", true)

	// Upload defaults
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.max_bytes", 10<<20)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.theme", "everforest")
}

func defaultAllowedOrigins() []string {
	return []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	}
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return defaultAllowedOrigins()
	}
	return c.Server.AllowedOrigins
}

// GetLogTheme returns the log theme (default: everforest)
func (c *Config) GetLogTheme() string {
	if c.Log.Theme == "" {
		return "everforest"
	}
	return c.Log.Theme
}
